package bank

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stablebond/storage"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the holder's
	// balance.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrBalanceOverflow is returned when a credit would exceed the uint64
	// range.
	ErrBalanceOverflow = errors.New("bank: balance overflow")
	// ErrSupplyUnderflow guards burns that exceed the recorded supply.
	ErrSupplyUnderflow = errors.New("bank: supply underflow")
)

var (
	balancePrefix = []byte("bank/balance/")
	supplyPrefix  = []byte("bank/supply/")
)

const addressHexLength = 2 * common.AddressLength

// ParseAddress normalises and validates an account or token address expressed
// as a hex string.
func ParseAddress(ref string) (common.Address, error) {
	var addr common.Address
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return addr, fmt.Errorf("bank: address required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != addressHexLength {
		return addr, fmt.Errorf("bank: address must be %d bytes (got %d hex chars)", common.AddressLength, len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("bank: decode address: %w", err)
	}
	copy(addr[:], decoded)
	return addr, nil
}

func balanceKey(token, account common.Address) []byte {
	buf := make([]byte, len(balancePrefix)+2*common.AddressLength)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], token[:])
	copy(buf[len(balancePrefix)+common.AddressLength:], account[:])
	return buf
}

func supplyKey(token common.Address) []byte {
	buf := make([]byte, len(supplyPrefix)+common.AddressLength)
	copy(buf, supplyPrefix)
	copy(buf[len(supplyPrefix):], token[:])
	return buf
}

func readUint(r storage.Reader, key []byte) (uint64, error) {
	raw, err := r.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("bank: corrupt value at %x", key)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func writeUint(txn storage.Txn, key []byte, value uint64) error {
	if value == 0 {
		return txn.Delete(key)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)
	return txn.Put(key, buf[:])
}

// Ledger holds token balances inside a storage transaction. Balances are
// uint64 base units keyed by token and account; a zero balance is not stored.
type Ledger struct {
	txn storage.Txn
}

// NewLedger binds a ledger to txn. Every mutation commits or rolls back with
// the transaction.
func NewLedger(txn storage.Txn) *Ledger {
	return &Ledger{txn: txn}
}

// Balance returns the holder's balance of token.
func (l *Ledger) Balance(token, account common.Address) (uint64, error) {
	return readUint(l.txn, balanceKey(token, account))
}

// Supply returns the total issued amount of token.
func (l *Ledger) Supply(token common.Address) (uint64, error) {
	return readUint(l.txn, supplyKey(token))
}

// Move transfers amount of token between two accounts.
func (l *Ledger) Move(token, from, to common.Address, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	if err := l.debit(token, from, amount); err != nil {
		return err
	}
	return l.credit(token, to, amount)
}

// Mint issues amount of token to the account and grows the supply.
func (l *Ledger) Mint(token, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	supply, err := l.Supply(token)
	if err != nil {
		return err
	}
	next, carry := bits.Add64(supply, amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	if err := l.credit(token, to, amount); err != nil {
		return err
	}
	return writeUint(l.txn, supplyKey(token), next)
}

// Burn destroys amount of token held by the account and shrinks the supply.
func (l *Ledger) Burn(token, from common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	supply, err := l.Supply(token)
	if err != nil {
		return err
	}
	if supply < amount {
		return ErrSupplyUnderflow
	}
	if err := l.debit(token, from, amount); err != nil {
		return err
	}
	return writeUint(l.txn, supplyKey(token), supply-amount)
}

func (l *Ledger) credit(token, account common.Address, amount uint64) error {
	key := balanceKey(token, account)
	current, err := readUint(l.txn, key)
	if err != nil {
		return err
	}
	next, carry := bits.Add64(current, amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	return writeUint(l.txn, key, next)
}

func (l *Ledger) debit(token, account common.Address, amount uint64) error {
	key := balanceKey(token, account)
	current, err := readUint(l.txn, key)
	if err != nil {
		return err
	}
	if current < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, current, amount)
	}
	return writeUint(l.txn, key, current-amount)
}

// Balance reads a balance outside of a write transaction.
func Balance(db storage.Database, token, account common.Address) (uint64, error) {
	var out uint64
	err := db.View(func(r storage.Reader) error {
		v, err := readUint(r, balanceKey(token, account))
		out = v
		return err
	})
	return out, err
}
