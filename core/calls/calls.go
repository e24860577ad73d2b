// Package calls defines the wire vocabulary of the ledger: one struct per
// contract operation, one selector per read, and the receipt returned by a
// submission.
package calls

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"

	coreerr "accordchain/core/errors"
	"accordchain/core/types"
	"accordchain/native/arbitration"
	"accordchain/native/registry"
)

const (
	ContractRegistry    = "registry"
	ContractEscrow      = "escrow"
	ContractArbitration = "arbitration"
	ContractLedger      = "ledger"
)

// Call is a state-changing operation addressed to a contract.
type Call interface {
	Contract() string
	Method() string
}

// ValueCall is implemented by calls that move funds from the signer into the
// contract on top of their arguments.
type ValueCall interface {
	Call
	AttachedValue() *big.Int
}

// Registry calls.

type Register struct {
	Role        registry.Role `json:"role"`
	MetadataURI string        `json:"metadataUri"`
	Stake       *big.Int      `json:"stake"`
}

func (Register) Contract() string { return ContractRegistry }
func (Register) Method() string   { return "register" }

type IncreaseStake struct {
	Amount *big.Int `json:"amount"`
}

func (IncreaseStake) Contract() string { return ContractRegistry }
func (IncreaseStake) Method() string   { return "increase_stake" }

type SubmitReview struct {
	Professional types.Account `json:"professional"`
	Rating       uint8         `json:"rating"`
	Comment      string        `json:"comment"`
}

func (SubmitReview) Contract() string { return ContractRegistry }
func (SubmitReview) Method() string   { return "submit_review" }

type WithdrawStake struct{}

func (WithdrawStake) Contract() string { return ContractRegistry }
func (WithdrawStake) Method() string   { return "withdraw_stake" }

// Escrow calls.

type CreateAgreement struct {
	Provider           types.Account               `json:"provider"`
	Descriptions       []string                    `json:"descriptions"`
	Amounts            []*big.Int                  `json:"amounts"`
	Deadlines          []uint64                    `json:"deadlines"`
	DisputeTimeout     uint64                      `json:"disputeTimeout"`
	Oracle             types.Option[types.Account] `json:"oracle"`
	Value              *big.Int                    `json:"value"`
	OracleVerification []bool                      `json:"oracleVerification,omitempty"`
}

func (CreateAgreement) Contract() string { return ContractEscrow }
func (CreateAgreement) Method() string   { return "create_agreement" }

// AttachedValue implements ValueCall.
func (c CreateAgreement) AttachedValue() *big.Int { return types.CloneBalance(c.Value) }

// MilestoneRef addresses one milestone of an agreement.
type MilestoneRef struct {
	AgreementID uint64 `json:"agreementId"`
	Index       uint32 `json:"index"`
}

type CompleteMilestone MilestoneRef

func (CompleteMilestone) Contract() string { return ContractEscrow }
func (CompleteMilestone) Method() string   { return "complete_milestone" }

type ApproveAndRelease MilestoneRef

func (ApproveAndRelease) Contract() string { return ContractEscrow }
func (ApproveAndRelease) Method() string   { return "approve_and_release" }

type RaiseDispute MilestoneRef

func (RaiseDispute) Contract() string { return ContractEscrow }
func (RaiseDispute) Method() string   { return "raise_dispute" }

type ResolveDispute struct {
	AgreementID       uint64 `json:"agreementId"`
	Index             uint32 `json:"index"`
	ReleaseToProvider bool   `json:"releaseToProvider"`
}

func (ResolveDispute) Contract() string { return ContractEscrow }
func (ResolveDispute) Method() string   { return "resolve_dispute" }

type SettleFromArbitration MilestoneRef

func (SettleFromArbitration) Contract() string { return ContractEscrow }
func (SettleFromArbitration) Method() string   { return "settle_from_arbitration" }

type CancelMilestone MilestoneRef

func (CancelMilestone) Contract() string { return ContractEscrow }
func (CancelMilestone) Method() string   { return "cancel_milestone" }

type ClaimAfterTimeout MilestoneRef

func (ClaimAfterTimeout) Contract() string { return ContractEscrow }
func (ClaimAfterTimeout) Method() string   { return "claim_after_timeout" }

// Arbitration calls.

type RegisterArbitrator struct {
	Stake *big.Int `json:"stake"`
}

func (RegisterArbitrator) Contract() string { return ContractArbitration }
func (RegisterArbitrator) Method() string   { return "register_arbitrator" }

type IncreaseArbitratorStake struct {
	Amount *big.Int `json:"amount"`
}

func (IncreaseArbitratorStake) Contract() string { return ContractArbitration }
func (IncreaseArbitratorStake) Method() string   { return "increase_arbitrator_stake" }

type WithdrawArbitratorStake struct{}

func (WithdrawArbitratorStake) Contract() string { return ContractArbitration }
func (WithdrawArbitratorStake) Method() string   { return "withdraw_arbitrator_stake" }

type CreateDispute struct {
	Defendant   types.Account `json:"defendant"`
	Description string        `json:"description"`
	EvidenceURI string        `json:"evidenceUri"`
}

func (CreateDispute) Contract() string { return ContractArbitration }
func (CreateDispute) Method() string   { return "create_dispute" }

// DisputeRef addresses a dispute.
type DisputeRef struct {
	DisputeID uint64 `json:"disputeId"`
}

type StartVoting DisputeRef

func (StartVoting) Contract() string { return ContractArbitration }
func (StartVoting) Method() string   { return "start_voting" }

type Vote struct {
	DisputeID uint64           `json:"disputeId"`
	Choice    arbitration.Side `json:"choice"`
}

func (Vote) Contract() string { return ContractArbitration }
func (Vote) Method() string   { return "vote" }

type FinalizeDispute DisputeRef

func (FinalizeDispute) Contract() string { return ContractArbitration }
func (FinalizeDispute) Method() string   { return "finalize_dispute" }

type AppealDispute DisputeRef

func (AppealDispute) Contract() string { return ContractArbitration }
func (AppealDispute) Method() string   { return "appeal_dispute" }

type CancelDispute DisputeRef

func (CancelDispute) Contract() string { return ContractArbitration }
func (CancelDispute) Method() string   { return "cancel_dispute" }

func callKey(contract, method string) string { return contract + "." + method }

var callFactories = map[string]func() Call{}

func registerCall(factory func() Call) {
	sample := factory()
	callFactories[callKey(sample.Contract(), sample.Method())] = factory
}

func init() {
	for _, factory := range []func() Call{
		func() Call { return &Register{} },
		func() Call { return &IncreaseStake{} },
		func() Call { return &SubmitReview{} },
		func() Call { return &WithdrawStake{} },
		func() Call { return &CreateAgreement{} },
		func() Call { return &CompleteMilestone{} },
		func() Call { return &ApproveAndRelease{} },
		func() Call { return &RaiseDispute{} },
		func() Call { return &ResolveDispute{} },
		func() Call { return &SettleFromArbitration{} },
		func() Call { return &CancelMilestone{} },
		func() Call { return &ClaimAfterTimeout{} },
		func() Call { return &RegisterArbitrator{} },
		func() Call { return &IncreaseArbitratorStake{} },
		func() Call { return &WithdrawArbitratorStake{} },
		func() Call { return &CreateDispute{} },
		func() Call { return &StartVoting{} },
		func() Call { return &Vote{} },
		func() Call { return &FinalizeDispute{} },
		func() Call { return &AppealDispute{} },
		func() Call { return &CancelDispute{} },
	} {
		registerCall(factory)
	}
}

// EncodeCall returns the routing pair and JSON arguments of call.
func EncodeCall(call Call) (contract, method string, args json.RawMessage, err error) {
	if call == nil {
		return "", "", nil, fmt.Errorf("calls: nil call: %w", coreerr.ErrInvalidArgument)
	}
	raw, err := json.Marshal(call)
	if err != nil {
		return "", "", nil, err
	}
	return call.Contract(), call.Method(), raw, nil
}

// DecodeCall rebuilds a call from its routing pair and JSON arguments. The
// returned value is the concrete call struct, not a pointer to it.
func DecodeCall(contract, method string, args json.RawMessage) (Call, error) {
	factory, ok := callFactories[callKey(contract, method)]
	if !ok {
		return nil, fmt.Errorf("calls: unknown method %s.%s: %w", contract, method, coreerr.ErrInvalidArgument)
	}
	call := factory()
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, call); err != nil {
			return nil, fmt.Errorf("calls: decode %s.%s: %v: %w", contract, method, err, coreerr.ErrInvalidArgument)
		}
	}
	return Normalize(call), nil
}

// Methods lists every known call as "contract.method".
func Methods() []string {
	out := make([]string, 0, len(callFactories))
	for key := range callFactories {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Normalize dereferences pointer calls so callers can switch on value types.
func Normalize(call Call) Call {
	v := reflect.ValueOf(call)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		if inner, ok := v.Elem().Interface().(Call); ok {
			return inner
		}
	}
	return call
}
