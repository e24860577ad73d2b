package calls

import (
	"encoding/json"

	"accordchain/core/types"
)

// Receipt describes the outcome of one submitted call. Business rejections
// are reported with Success false and a Code naming the error kind; the
// transaction itself still exists and has a hash.
type Receipt struct {
	TxHash      string               `json:"txHash"`
	Contract    string               `json:"contract"`
	Method      string               `json:"method"`
	Signer      types.Account        `json:"signer"`
	Success     bool                 `json:"success"`
	Code        string               `json:"code,omitempty"`
	Error       string               `json:"error,omitempty"`
	Return      json.RawMessage      `json:"return,omitempty"`
	GasConsumed types.Option[uint64] `json:"gasConsumed"`
	Events      []types.Event        `json:"events,omitempty"`
	BlockTime   uint64               `json:"blockTime"`
}

// DecodeReturn unmarshals the call's return value into out. It is a no-op
// when the call returned nothing.
func (r *Receipt) DecodeReturn(out any) error {
	if r == nil || len(r.Return) == 0 || string(r.Return) == "null" {
		return nil
	}
	return json.Unmarshal(r.Return, out)
}
