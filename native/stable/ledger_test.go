package stable

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func testAddr(b byte) common.Address {
	var addr common.Address
	addr[common.AddressLength-1] = b
	return addr
}

func TestLedgerCreditDebit(t *testing.T) {
	ledger := NewLedger(0)
	now := time.Unix(1_700_000_000, 0)
	alice := testAddr(1)

	if err := ledger.Credit(alice, 100, 50, now); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Credit(alice, 20, 10, now); err != nil {
		t.Fatalf("credit: %v", err)
	}
	share, ok := ledger.Get(alice)
	if !ok || share.BondAmount != 120 || share.MintAmount != 60 {
		t.Fatalf("unexpected share %+v", share)
	}
	if err := ledger.Debit(alice, 121, 1, now); !errors.Is(err, ErrInsufficientUserShare) {
		t.Fatalf("expected insufficient share, got %v", err)
	}
	if err := ledger.Debit(testAddr(9), 1, 1, now); !errors.Is(err, ErrUserShareNotFound) {
		t.Fatalf("expected share not found, got %v", err)
	}
	if err := ledger.Debit(alice, 120, 60, now); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, ok := ledger.Get(alice); ok {
		t.Fatalf("fully unwound depositor must be removed")
	}
	if ledger.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d", ledger.Len())
	}
}

func TestLedgerPartialDebitKeepsEntry(t *testing.T) {
	ledger := NewLedger(0)
	now := time.Unix(1_700_000_000, 0)
	alice := testAddr(1)
	if err := ledger.Credit(alice, 1_000_000, 1_333_333, now); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Debit(alice, 999_999, 1_333_333, now); err != nil {
		t.Fatalf("debit: %v", err)
	}
	share, ok := ledger.Get(alice)
	if !ok || share.BondAmount != 1 || share.MintAmount != 0 {
		t.Fatalf("expected residual bond entry, got %+v ok=%v", share, ok)
	}
}

func TestLedgerBound(t *testing.T) {
	ledger := NewLedger(3)
	now := time.Unix(1_700_000_000, 0)
	for i := byte(1); i <= 3; i++ {
		if err := ledger.Credit(testAddr(i), 1, 1, now); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}
	if err := ledger.Credit(testAddr(4), 1, 1, now); !errors.Is(err, ErrTooManyUsers) {
		t.Fatalf("expected too many users, got %v", err)
	}
	if err := ledger.Credit(testAddr(2), 1, 1, now); err != nil {
		t.Fatalf("existing depositor should still be credited: %v", err)
	}
}

func TestLedgerSharesOrderedAndTotals(t *testing.T) {
	ledger := NewLedger(0)
	now := time.Unix(1_700_000_000, 0)
	for _, b := range []byte{7, 2, 5} {
		if err := ledger.Credit(testAddr(b), uint64(b)*10, uint64(b), now); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	shares := ledger.Shares()
	if len(shares) != 3 || shares[0].Depositor != testAddr(2) || shares[2].Depositor != testAddr(7) {
		t.Fatalf("unexpected ordering %+v", shares)
	}
	bondTotal, mintTotal, err := ledger.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if bondTotal != 140 || mintTotal != 14 {
		t.Fatalf("unexpected totals %d/%d", bondTotal, mintTotal)
	}
}
