package dex

import (
	"fmt"
	"math/big"
)

var (
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// SignedDelta is the settlement outcome of a swap for the initiating party.
// Positive amounts are owed to the party by the pool, negative amounts are
// owed by the party to the pool.
type SignedDelta struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// NewSignedDelta copies the given amounts into a delta.
func NewSignedDelta(amount0, amount1 *big.Int) SignedDelta {
	return SignedDelta{
		Amount0: new(big.Int).Set(amount0),
		Amount1: new(big.Int).Set(amount1),
	}
}

// ZeroDelta returns a delta with both amounts zero.
func ZeroDelta() SignedDelta {
	return SignedDelta{Amount0: big.NewInt(0), Amount1: big.NewInt(0)}
}

// Get returns the component for currency0 or currency1.
func (d SignedDelta) Get(currency0 bool) *big.Int {
	if currency0 {
		return d.Amount0
	}
	return d.Amount1
}

// IsZero reports whether both amounts are zero.
func (d SignedDelta) IsZero() bool {
	return d.Amount0.Sign() == 0 && d.Amount1.Sign() == 0
}

// Equal reports whether both components match.
func (d SignedDelta) Equal(other SignedDelta) bool {
	return d.Amount0.Cmp(other.Amount0) == 0 && d.Amount1.Cmp(other.Amount1) == 0
}

// Validate checks that both components fit the signed 128-bit range.
func (d SignedDelta) Validate() error {
	if d.Amount0 == nil || d.Amount1 == nil {
		return fmt.Errorf("%w: nil delta component", ErrArithmeticOverflow)
	}
	if err := checkInt128(d.Amount0); err != nil {
		return err
	}
	return checkInt128(d.Amount1)
}

func (d SignedDelta) String() string {
	return fmt.Sprintf("(%s, %s)", d.Amount0, d.Amount1)
}

func checkInt128(v *big.Int) error {
	if v.Cmp(maxInt128) > 0 || v.Cmp(minInt128) < 0 {
		return fmt.Errorf("%w: %s outside int128", ErrArithmeticOverflow, v)
	}
	return nil
}

// addInt128 returns a+b, failing instead of leaving the int128 range.
func addInt128(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if err := checkInt128(sum); err != nil {
		return nil, err
	}
	return sum, nil
}

// subInt128 returns a-b, failing instead of leaving the int128 range.
func subInt128(a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(a, b)
	if err := checkInt128(diff); err != nil {
		return nil, err
	}
	return diff, nil
}

func isNonNegative(v *big.Int) bool {
	return v == nil || v.Sign() >= 0
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
