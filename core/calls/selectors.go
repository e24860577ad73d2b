package calls

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	coreerr "accordchain/core/errors"
	"accordchain/core/types"
	"accordchain/native/arbitration"
	"accordchain/native/escrow"
	"accordchain/native/registry"
)

// Selector names a read-only query against committed state.
type Selector interface {
	Contract() string
	Query() string
	// Decode turns the JSON form of the query result back into the value a
	// local node returns for it.
	Decode(raw json.RawMessage) (any, error)
}

func decodePtr[T any](raw json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeValue[T any](raw json.RawMessage) (any, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Registry queries.

type GetProfile struct {
	Account types.Account `json:"account"`
}

func (GetProfile) Contract() string                        { return ContractRegistry }
func (GetProfile) Query() string                           { return "get_profile" }
func (GetProfile) Decode(raw json.RawMessage) (any, error) { return decodePtr[registry.Profile](raw) }

type GetReview struct {
	Professional types.Account `json:"professional"`
	Index        uint64        `json:"index"`
}

func (GetReview) Contract() string                        { return ContractRegistry }
func (GetReview) Query() string                           { return "get_review" }
func (GetReview) Decode(raw json.RawMessage) (any, error) { return decodePtr[registry.Review](raw) }

type GetReviewCount struct {
	Professional types.Account `json:"professional"`
}

func (GetReviewCount) Contract() string                        { return ContractRegistry }
func (GetReviewCount) Query() string                           { return "get_review_count" }
func (GetReviewCount) Decode(raw json.RawMessage) (any, error) { return decodeValue[uint64](raw) }

type GetMinStake struct {
	Role registry.Role `json:"role"`
}

func (GetMinStake) Contract() string                        { return ContractRegistry }
func (GetMinStake) Query() string                           { return "get_min_stake" }
func (GetMinStake) Decode(raw json.RawMessage) (any, error) { return decodePtr[big.Int](raw) }

type IsActiveProfessional struct {
	Account types.Account `json:"account"`
}

func (IsActiveProfessional) Contract() string                        { return ContractRegistry }
func (IsActiveProfessional) Query() string                           { return "is_active_professional" }
func (IsActiveProfessional) Decode(raw json.RawMessage) (any, error) { return decodeValue[bool](raw) }

// Escrow queries.

type GetAgreement struct {
	AgreementID uint64 `json:"agreementId"`
}

func (GetAgreement) Contract() string                        { return ContractEscrow }
func (GetAgreement) Query() string                           { return "get_agreement" }
func (GetAgreement) Decode(raw json.RawMessage) (any, error) { return decodePtr[escrow.Agreement](raw) }

type GetMilestone MilestoneRef

func (GetMilestone) Contract() string                        { return ContractEscrow }
func (GetMilestone) Query() string                           { return "get_milestone" }
func (GetMilestone) Decode(raw json.RawMessage) (any, error) { return decodePtr[escrow.Milestone](raw) }

type GetMilestoneCount struct {
	AgreementID uint64 `json:"agreementId"`
}

func (GetMilestoneCount) Contract() string                        { return ContractEscrow }
func (GetMilestoneCount) Query() string                           { return "get_milestone_count" }
func (GetMilestoneCount) Decode(raw json.RawMessage) (any, error) { return decodeValue[uint32](raw) }

type GetAllMilestones struct {
	AgreementID uint64 `json:"agreementId"`
}

func (GetAllMilestones) Contract() string { return ContractEscrow }
func (GetAllMilestones) Query() string    { return "get_all_milestones" }
func (GetAllMilestones) Decode(raw json.RawMessage) (any, error) {
	return decodeValue[[]*escrow.Milestone](raw)
}

// Arbitration queries.

type GetDispute struct {
	DisputeID uint64 `json:"disputeId"`
}

func (GetDispute) Contract() string                        { return ContractArbitration }
func (GetDispute) Query() string                           { return "get_dispute" }
func (GetDispute) Decode(raw json.RawMessage) (any, error) { return decodePtr[arbitration.Dispute](raw) }

type GetArbitrator struct {
	Account types.Account `json:"account"`
}

func (GetArbitrator) Contract() string { return ContractArbitration }
func (GetArbitrator) Query() string    { return "get_arbitrator" }
func (GetArbitrator) Decode(raw json.RawMessage) (any, error) {
	return decodePtr[arbitration.Arbitrator](raw)
}

// GetVote reads a ballot. An absent Round means the current round.
type GetVote struct {
	DisputeID  uint64               `json:"disputeId"`
	Arbitrator types.Account        `json:"arbitrator"`
	Round      types.Option[uint32] `json:"round"`
}

func (GetVote) Contract() string                        { return ContractArbitration }
func (GetVote) Query() string                           { return "get_vote" }
func (GetVote) Decode(raw json.RawMessage) (any, error) { return decodePtr[arbitration.Vote](raw) }

type IsActiveArbitrator struct {
	Account types.Account `json:"account"`
}

func (IsActiveArbitrator) Contract() string                        { return ContractArbitration }
func (IsActiveArbitrator) Query() string                           { return "is_active_arbitrator" }
func (IsActiveArbitrator) Decode(raw json.RawMessage) (any, error) { return decodeValue[bool](raw) }

type GetMinArbitratorStake struct{}

func (GetMinArbitratorStake) Contract() string                        { return ContractArbitration }
func (GetMinArbitratorStake) Query() string                           { return "get_min_arbitrator_stake" }
func (GetMinArbitratorStake) Decode(raw json.RawMessage) (any, error) { return decodePtr[big.Int](raw) }

type GetVotingResults DisputeRef

func (GetVotingResults) Contract() string { return ContractArbitration }
func (GetVotingResults) Query() string    { return "get_voting_results" }
func (GetVotingResults) Decode(raw json.RawMessage) (any, error) {
	return decodePtr[arbitration.VotingResults](raw)
}

type HasVotingEnded DisputeRef

func (HasVotingEnded) Contract() string                        { return ContractArbitration }
func (HasVotingEnded) Query() string                           { return "has_voting_ended" }
func (HasVotingEnded) Decode(raw json.RawMessage) (any, error) { return decodeValue[bool](raw) }

// Ledger queries.

type GetBalance struct {
	Account types.Account `json:"account"`
}

func (GetBalance) Contract() string                        { return ContractLedger }
func (GetBalance) Query() string                           { return "get_balance" }
func (GetBalance) Decode(raw json.RawMessage) (any, error) { return decodePtr[big.Int](raw) }

type GetBlockTime struct{}

func (GetBlockTime) Contract() string                        { return ContractLedger }
func (GetBlockTime) Query() string                           { return "get_block_time" }
func (GetBlockTime) Decode(raw json.RawMessage) (any, error) { return decodeValue[uint64](raw) }

var selectorFactories = map[string]func() Selector{}

func init() {
	for _, factory := range []func() Selector{
		func() Selector { return &GetProfile{} },
		func() Selector { return &GetReview{} },
		func() Selector { return &GetReviewCount{} },
		func() Selector { return &GetMinStake{} },
		func() Selector { return &IsActiveProfessional{} },
		func() Selector { return &GetAgreement{} },
		func() Selector { return &GetMilestone{} },
		func() Selector { return &GetMilestoneCount{} },
		func() Selector { return &GetAllMilestones{} },
		func() Selector { return &GetDispute{} },
		func() Selector { return &GetArbitrator{} },
		func() Selector { return &GetVote{} },
		func() Selector { return &IsActiveArbitrator{} },
		func() Selector { return &GetMinArbitratorStake{} },
		func() Selector { return &GetVotingResults{} },
		func() Selector { return &HasVotingEnded{} },
		func() Selector { return &GetBalance{} },
		func() Selector { return &GetBlockTime{} },
	} {
		sample := factory()
		selectorFactories[callKey(sample.Contract(), sample.Query())] = factory
	}
}

// EncodeSelector returns the routing pair and JSON arguments of sel.
func EncodeSelector(sel Selector) (contract, query string, args json.RawMessage, err error) {
	if sel == nil {
		return "", "", nil, fmt.Errorf("calls: nil selector: %w", coreerr.ErrInvalidArgument)
	}
	raw, err := json.Marshal(sel)
	if err != nil {
		return "", "", nil, err
	}
	return sel.Contract(), sel.Query(), raw, nil
}

// DecodeSelector rebuilds a selector from its routing pair and JSON arguments.
func DecodeSelector(contract, query string, args json.RawMessage) (Selector, error) {
	factory, ok := selectorFactories[callKey(contract, query)]
	if !ok {
		return nil, fmt.Errorf("calls: unknown query %s.%s: %w", contract, query, coreerr.ErrInvalidArgument)
	}
	sel := factory()
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, sel); err != nil {
			return nil, fmt.Errorf("calls: decode %s.%s: %v: %w", contract, query, err, coreerr.ErrInvalidArgument)
		}
	}
	return NormalizeSelector(sel), nil
}

// NormalizeSelector dereferences pointer selectors.
func NormalizeSelector(sel Selector) Selector {
	v := reflect.ValueOf(sel)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		if inner, ok := v.Elem().Interface().(Selector); ok {
			return inner
		}
	}
	return sel
}
