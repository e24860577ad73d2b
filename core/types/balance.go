package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// BalanceBits is the width of every ledger balance.
const BalanceBits = 128

var (
	// MaxBalance is the largest representable balance (2^128 - 1).
	MaxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), BalanceBits), big.NewInt(1))

	// ErrBalanceOverflow is returned when arithmetic leaves the 128-bit range.
	ErrBalanceOverflow = errors.New("balance: overflow")
	// ErrBalanceUnderflow is returned when a subtraction would go negative.
	ErrBalanceUnderflow = errors.New("balance: underflow")
	// ErrInvalidBalance marks negative or oversized inputs.
	ErrInvalidBalance = errors.New("balance: invalid value")
)

// CloneBalance returns a copy of v, treating nil as zero.
func CloneBalance(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// ValidateBalance ensures v is within [0, MaxBalance]. Nil counts as zero.
func ValidateBalance(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 || v.BitLen() > BalanceBits {
		return fmt.Errorf("%w: %s", ErrInvalidBalance, v.String())
	}
	return nil
}

func toU256(v *big.Int) (*uint256.Int, error) {
	if err := ValidateBalance(v); err != nil {
		return nil, err
	}
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBalance, v.String())
	}
	return out, nil
}

// AddBalance returns a+b, rejecting results outside the 128-bit range.
func AddBalance(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow || sum.BitLen() > BalanceBits {
		return nil, ErrBalanceOverflow
	}
	return sum.ToBig(), nil
}

// SubBalance returns a-b, rejecting negative results.
func SubBalance(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrBalanceUnderflow
	}
	return diff.ToBig(), nil
}

// SumBalances adds every value, failing on overflow.
func SumBalances(values ...*big.Int) (*big.Int, error) {
	total := big.NewInt(0)
	for _, v := range values {
		next, err := AddBalance(total, v)
		if err != nil {
			return nil, err
		}
		total = next
	}
	return total, nil
}

// ParseBalance parses a base-10 balance string.
func ParseBalance(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBalance)
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBalance, s)
	}
	if err := ValidateBalance(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Tokens converts a whole-token amount into base units (18 decimals).
func Tokens(whole int64) *big.Int {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(whole), unit)
}
