package stable

import (
	"bytes"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the per-asset depositor share book. Entries are keyed by
// depositor and the book never holds more than limit entries.
type Ledger struct {
	limit   int
	entries map[common.Address]*DepositorShare
}

// NewLedger returns an empty ledger bounded at limit entries.
func NewLedger(limit int) *Ledger {
	if limit <= 0 {
		limit = MaxDepositors
	}
	return &Ledger{limit: limit, entries: make(map[common.Address]*DepositorShare)}
}

// Len reports the number of depositors with an open position.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// Get returns a copy of the depositor's share.
func (l *Ledger) Get(depositor common.Address) (DepositorShare, bool) {
	if l == nil {
		return DepositorShare{}, false
	}
	share, ok := l.entries[depositor]
	if !ok {
		return DepositorShare{}, false
	}
	return *share, true
}

// Credit adds principal to the depositor, creating the entry when needed.
func (l *Ledger) Credit(depositor common.Address, bondAmount, mintAmount uint64, now time.Time) error {
	share, ok := l.entries[depositor]
	if !ok {
		if len(l.entries) >= l.limit {
			return ErrTooManyUsers
		}
		l.entries[depositor] = &DepositorShare{
			Depositor:  depositor,
			BondAmount: bondAmount,
			MintAmount: mintAmount,
			UpdatedAt:  now,
		}
		return nil
	}
	bond, err := addChecked(share.BondAmount, bondAmount)
	if err != nil {
		return err
	}
	minted, err := addChecked(share.MintAmount, mintAmount)
	if err != nil {
		return err
	}
	share.BondAmount = bond
	share.MintAmount = minted
	share.UpdatedAt = now
	return nil
}

// Debit removes principal from the depositor. The entry is deleted once both
// amounts reach zero.
func (l *Ledger) Debit(depositor common.Address, bondAmount, mintAmount uint64, now time.Time) error {
	share, ok := l.entries[depositor]
	if !ok {
		return ErrUserShareNotFound
	}
	if share.BondAmount < bondAmount || share.MintAmount < mintAmount {
		return ErrInsufficientUserShare
	}
	share.BondAmount -= bondAmount
	share.MintAmount -= mintAmount
	share.UpdatedAt = now
	if share.BondAmount == 0 && share.MintAmount == 0 {
		delete(l.entries, depositor)
	}
	return nil
}

// Shares lists every open position ordered by depositor address.
func (l *Ledger) Shares() []DepositorShare {
	if l == nil {
		return nil
	}
	out := make([]DepositorShare, 0, len(l.entries))
	for _, share := range l.entries {
		out = append(out, *share)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Depositor[:], out[j].Depositor[:]) < 0
	})
	return out
}

// Totals sums collateral and minted supply across every position.
func (l *Ledger) Totals() (bondTotal, mintTotal uint64, err error) {
	if l == nil {
		return 0, 0, nil
	}
	for _, share := range l.entries {
		if bondTotal, err = addChecked(bondTotal, share.BondAmount); err != nil {
			return 0, 0, err
		}
		if mintTotal, err = addChecked(mintTotal, share.MintAmount); err != nil {
			return 0, 0, err
		}
	}
	return bondTotal, mintTotal, nil
}

func (l *Ledger) put(share DepositorShare) {
	s := share
	l.entries[share.Depositor] = &s
}
