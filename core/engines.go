package core

import (
	"fmt"

	"accordchain/core/calls"
	coreerr "accordchain/core/errors"
	"accordchain/core/events"
	"accordchain/core/state"
	"accordchain/core/types"
	"accordchain/native/arbitration"
	"accordchain/native/escrow"
	"accordchain/native/registry"
)

// engines holds one instance of each contract bound to a single state view.
type engines struct {
	manager     *state.Manager
	registry    *registry.Engine
	escrow      *escrow.Engine
	arbitration *arbitration.Engine
}

func newEngines(manager *state.Manager, emitter events.Emitter, blockTime uint64, policies Policies) *engines {
	now := func() uint64 { return blockTime }

	reg := registry.NewEngine()
	reg.SetState(manager)
	reg.SetPolicy(policies.Registry)
	reg.SetNowFunc(now)
	reg.SetEmitter(emitter)

	court := arbitration.NewEngine()
	court.SetState(manager)
	court.SetRegistry(reg)
	court.SetPolicy(policies.Arbitration)
	court.SetNowFunc(now)
	court.SetEmitter(emitter)

	esc := escrow.NewEngine()
	esc.SetState(manager)
	esc.SetRegistry(reg)
	esc.SetCourt(court)
	esc.SetPolicy(policies.Escrow)
	esc.SetNowFunc(now)
	esc.SetEmitter(emitter)

	return &engines{manager: manager, registry: reg, escrow: esc, arbitration: court}
}

// execute routes call to its engine. The returned value, when non-nil, is the
// call's JSON return payload.
func (n *Node) execute(e *engines, call calls.Call, signer types.Account) (any, error) {
	switch c := call.(type) {
	case calls.Register:
		return e.registry.Register(signer, c.Role, c.MetadataURI, c.Stake)
	case calls.IncreaseStake:
		return e.registry.IncreaseStake(signer, c.Amount)
	case calls.SubmitReview:
		return e.registry.SubmitReview(signer, c.Professional, c.Rating, c.Comment)
	case calls.WithdrawStake:
		return e.registry.WithdrawStake(signer)

	case calls.CreateAgreement:
		return e.escrow.CreateAgreement(signer, escrow.CreateParams{
			Provider:           c.Provider,
			Descriptions:       c.Descriptions,
			Amounts:            c.Amounts,
			Deadlines:          c.Deadlines,
			DisputeTimeout:     c.DisputeTimeout,
			Oracle:             c.Oracle,
			OracleVerification: c.OracleVerification,
		}, c.AttachedValue())
	case calls.CompleteMilestone:
		return nil, e.escrow.CompleteMilestone(signer, c.AgreementID, c.Index)
	case calls.ApproveAndRelease:
		return nil, e.escrow.ApproveAndRelease(signer, c.AgreementID, c.Index)
	case calls.RaiseDispute:
		if err := e.escrow.RaiseDispute(signer, c.AgreementID, c.Index); err != nil {
			return nil, err
		}
		milestone, _, err := e.escrow.Milestone(c.AgreementID, c.Index)
		if err != nil || milestone == nil {
			return nil, err
		}
		return milestone.DisputeID, nil
	case calls.ResolveDispute:
		return nil, e.escrow.ResolveDispute(signer, c.AgreementID, c.Index, c.ReleaseToProvider)
	case calls.SettleFromArbitration:
		return nil, e.escrow.SettleFromArbitration(c.AgreementID, c.Index)
	case calls.CancelMilestone:
		return nil, e.escrow.CancelMilestone(signer, c.AgreementID, c.Index)
	case calls.ClaimAfterTimeout:
		return nil, e.escrow.ClaimAfterTimeout(signer, c.AgreementID, c.Index)

	case calls.RegisterArbitrator:
		return e.arbitration.RegisterArbitrator(signer, c.Stake)
	case calls.IncreaseArbitratorStake:
		return e.arbitration.IncreaseArbitratorStake(signer, c.Amount)
	case calls.WithdrawArbitratorStake:
		return e.arbitration.WithdrawArbitratorStake(signer)
	case calls.CreateDispute:
		return e.arbitration.CreateDispute(signer, c.Defendant, c.Description, c.EvidenceURI)
	case calls.StartVoting:
		return nil, e.arbitration.StartVoting(signer, c.DisputeID)
	case calls.Vote:
		return nil, e.arbitration.CastVote(signer, c.DisputeID, c.Choice)
	case calls.FinalizeDispute:
		return e.arbitration.FinalizeDispute(c.DisputeID)
	case calls.AppealDispute:
		return nil, e.arbitration.AppealDispute(signer, c.DisputeID)
	case calls.CancelDispute:
		return nil, e.arbitration.CancelDispute(signer, c.DisputeID)
	default:
		return nil, fmt.Errorf("core: unsupported call %s.%s: %w", call.Contract(), call.Method(), coreerr.ErrInvalidArgument)
	}
}
