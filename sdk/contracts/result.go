package contracts

import (
	"encoding/json"
	"fmt"

	"accordchain/core/calls"
	coreerr "accordchain/core/errors"
	"accordchain/core/types"
)

// ContractResult is the outcome of one contract operation. A successful
// result carries no error; a failed one carries no data and a non-empty
// error.
type ContractResult[T any] struct {
	Success     bool                 `json:"success"`
	Data        types.Option[T]      `json:"data"`
	Error       types.Option[string] `json:"error"`
	GasConsumed types.Option[uint64] `json:"gasConsumed"`
	TxHash      string               `json:"txHash,omitempty"`

	code string
}

// Ok builds a successful result.
func Ok[T any](data T, gas types.Option[uint64]) ContractResult[T] {
	return ContractResult[T]{Success: true, Data: types.Some(data), GasConsumed: gas}
}

// Err builds a failed result. An empty message is replaced by the code.
func Err[T any](code, message string, gas types.Option[uint64]) ContractResult[T] {
	if message == "" {
		message = code
	}
	if message == "" {
		message = coreerr.CodeInternal
	}
	return ContractResult[T]{Error: types.Some(message), GasConsumed: gas, code: code}
}

// Code recovers the error kind of a failed result. Successful results report
// an empty code.
func (r ContractResult[T]) Code() string {
	if r.Success {
		return ""
	}
	if r.code != "" {
		return r.code
	}
	return coreerr.CodeInternal
}

// AsError returns the failure as an error matching the core sentinels, or
// nil on success.
func (r ContractResult[T]) AsError() error {
	if r.Success {
		return nil
	}
	return coreerr.FromCode(r.Code(), r.Error.OrElse(""))
}

// Value returns the data of a successful result and the failure otherwise.
func (r ContractResult[T]) Value() (T, error) {
	if err := r.AsError(); err != nil {
		var zero T
		return zero, err
	}
	return r.Data.Value, nil
}

// fromReceipt converts a receipt into a result, decoding the return payload
// into T on success.
func fromReceipt[T any](receipt *calls.Receipt) (ContractResult[T], error) {
	if receipt == nil {
		return ContractResult[T]{}, fmt.Errorf("sdk: nil receipt: %w", coreerr.ErrTransportFailure)
	}
	if !receipt.Success {
		result := Err[T](receipt.Code, receipt.Error, receipt.GasConsumed)
		result.TxHash = receipt.TxHash
		return result, nil
	}
	var data T
	if len(receipt.Return) > 0 {
		if err := json.Unmarshal(receipt.Return, &data); err != nil {
			return ContractResult[T]{}, fmt.Errorf("sdk: decode %s.%s return: %v: %w",
				receipt.Contract, receipt.Method, err, coreerr.ErrTransportFailure)
		}
	}
	result := Ok(data, receipt.GasConsumed)
	result.TxHash = receipt.TxHash
	return result, nil
}

// Empty is the data of operations that return nothing.
type Empty struct{}
