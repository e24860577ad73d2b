package state

import (
	"fmt"
	"math/big"

	coreerr "accordchain/core/errors"
	"accordchain/core/types"
)

// Balance returns the balance of acc. Unknown accounts hold zero.
func (m *Manager) Balance(acc types.Account) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(balanceKey(acc), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// SetBalance overwrites the balance of acc.
func (m *Manager) SetBalance(acc types.Account, amount *big.Int) error {
	if acc.IsZero() {
		return fmt.Errorf("state: balance of zero account: %w", coreerr.ErrInvalidArgument)
	}
	if err := types.ValidateBalance(amount); err != nil {
		return err
	}
	return m.KVPut(balanceKey(acc), types.CloneBalance(amount))
}

// Credit adds amount to the balance of acc.
func (m *Manager) Credit(acc types.Account, amount *big.Int) error {
	current, err := m.Balance(acc)
	if err != nil {
		return err
	}
	next, err := types.AddBalance(current, amount)
	if err != nil {
		return fmt.Errorf("state: credit %s: %w", acc, err)
	}
	return m.SetBalance(acc, next)
}

// Debit removes amount from the balance of acc.
func (m *Manager) Debit(acc types.Account, amount *big.Int) error {
	current, err := m.Balance(acc)
	if err != nil {
		return err
	}
	next, err := types.SubBalance(current, amount)
	if err != nil {
		return fmt.Errorf("state: %s holds %s, needs %s: %w", acc, current, types.CloneBalance(amount), coreerr.ErrInsufficientBalance)
	}
	return m.SetBalance(acc, next)
}

// Transfer moves amount from one account to another. Zero transfers are
// no-ops.
func (m *Manager) Transfer(from, to types.Account, amount *big.Int) error {
	amt := types.CloneBalance(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if err := types.ValidateBalance(amt); err != nil {
		return err
	}
	if from == to {
		_, err := m.Balance(from)
		return err
	}
	if err := m.Debit(from, amt); err != nil {
		return err
	}
	return m.Credit(to, amt)
}
