package contracts

import (
	"context"
	"fmt"

	"accordchain/core/calls"
	coreerr "accordchain/core/errors"
	"accordchain/core/types"
)

// Contracts bundles the three contract clients over one ledger.
type Contracts struct {
	Escrow      *EscrowContract
	Registry    *RegistryContract
	Arbitration *ArbitrationContract
}

func New(ledger Ledger) *Contracts {
	return &Contracts{
		Escrow:      &EscrowContract{ledger: ledger},
		Registry:    &RegistryContract{ledger: ledger},
		Arbitration: &ArbitrationContract{ledger: ledger},
	}
}

func submit[T any](ctx context.Context, ledger Ledger, call calls.Call, signer types.Account) (ContractResult[T], error) {
	receipt, err := ledger.SubmitTransaction(ctx, call, signer)
	if err != nil {
		return ContractResult[T]{}, err
	}
	return fromReceipt[T](receipt)
}

// submitEmpty runs an operation without a return value.
func submitEmpty(ctx context.Context, ledger Ledger, call calls.Call, signer types.Account) (ContractResult[Empty], error) {
	receipt, err := ledger.SubmitTransaction(ctx, call, signer)
	if err != nil {
		return ContractResult[Empty]{}, err
	}
	receipt.Return = nil
	return fromReceipt[Empty](receipt)
}

// queryRecord fetches a record and reports ErrNotFound when it is missing.
func queryRecord[T any](ctx context.Context, ledger Ledger, sel calls.Selector) (T, error) {
	var zero T
	value, found, err := ledger.QueryStorage(ctx, sel)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, fmt.Errorf("sdk: %s.%s: %w", sel.Contract(), sel.Query(), coreerr.ErrNotFound)
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("sdk: %s.%s returned %T: %w", sel.Contract(), sel.Query(), value, coreerr.ErrTransportFailure)
	}
	return typed, nil
}
