package stable

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// wide carries a 256-bit intermediate through a chain of checked operations.
// The first failure sticks and every later step is a no-op.
type wide struct {
	v   *uint256.Int
	err error
}

func widen(x uint64) *wide {
	return &wide{v: uint256.NewInt(x)}
}

func (w *wide) mul(y uint64) *wide {
	if w.err != nil {
		return w
	}
	product, overflow := new(uint256.Int).MulOverflow(w.v, uint256.NewInt(y))
	if overflow {
		w.err = ErrMathOverflow
		return w
	}
	w.v = product
	return w
}

// div truncates toward zero. Division by zero is reported as an overflow.
func (w *wide) div(y uint64) *wide {
	if w.err != nil {
		return w
	}
	if y == 0 {
		w.err = ErrMathOverflow
		return w
	}
	w.v = new(uint256.Int).Div(w.v, uint256.NewInt(y))
	return w
}

// narrow returns the value as uint64, failing with rangeErr when it does not
// fit.
func (w *wide) narrow(rangeErr error) (uint64, error) {
	if w.err != nil {
		return 0, w.err
	}
	if !w.v.IsUint64() {
		return 0, rangeErr
	}
	return w.v.Uint64(), nil
}

func addChecked(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

func subChecked(a, b uint64, underflow error) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, underflow
	}
	return diff, nil
}
