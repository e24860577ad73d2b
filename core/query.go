package core

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"accordchain/core/calls"
	coreerr "accordchain/core/errors"
	"accordchain/core/events"
	"accordchain/core/state"
	"accordchain/storage"
)

// Query answers sel against a snapshot of committed state. Missing records
// report found false with a nil error.
func (n *Node) Query(ctx context.Context, sel calls.Selector) (any, bool, error) {
	if sel == nil {
		return nil, false, fmt.Errorf("core: nil selector: %w", coreerr.ErrInvalidArgument)
	}
	sel = calls.NormalizeSelector(sel)
	_, span := n.tracer.Start(ctx, "accord.query", trace.WithAttributes(
		attribute.String("accord.contract", sel.Contract()),
		attribute.String("accord.query", sel.Query()),
	))
	defer span.End()

	n.stateMu.Lock()
	now := n.now()
	n.stateMu.Unlock()

	snap, err := n.db.NewSnapshot()
	if err != nil {
		return nil, false, fmt.Errorf("core: snapshot: %w", err)
	}
	defer snap.Release()
	manager := state.NewManager(storage.ReadOnly(snap))
	e := newEngines(manager, events.NoopEmitter{}, now, n.policies)

	value, found, err := e.query(sel, now)
	if errors.Is(err, coreerr.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	return value, found, nil
}

func (e *engines) query(sel calls.Selector, now uint64) (any, bool, error) {
	switch s := sel.(type) {
	case calls.GetProfile:
		return found(e.registry.Profile(s.Account))
	case calls.GetReview:
		return found(e.registry.Review(s.Professional, s.Index))
	case calls.GetReviewCount:
		return always(e.registry.ReviewCount(s.Professional))
	case calls.GetMinStake:
		if !s.Role.Valid() {
			return nil, false, fmt.Errorf("core: unknown role %d: %w", s.Role, coreerr.ErrInvalidArgument)
		}
		return e.registry.MinStake(s.Role), true, nil
	case calls.IsActiveProfessional:
		return always(e.registry.IsActiveProfessional(s.Account))

	case calls.GetAgreement:
		return found(e.escrow.Agreement(s.AgreementID))
	case calls.GetMilestone:
		return found(e.escrow.Milestone(s.AgreementID, s.Index))
	case calls.GetMilestoneCount:
		return found(e.escrow.MilestoneCount(s.AgreementID))
	case calls.GetAllMilestones:
		return found(e.escrow.Milestones(s.AgreementID))

	case calls.GetDispute:
		return found(e.arbitration.Dispute(s.DisputeID))
	case calls.GetArbitrator:
		return found(e.arbitration.Arbitrator(s.Account))
	case calls.GetVote:
		return found(e.arbitration.Vote(s.DisputeID, s.Arbitrator, s.Round))
	case calls.IsActiveArbitrator:
		return always(e.arbitration.IsActiveArbitrator(s.Account))
	case calls.GetMinArbitratorStake:
		return e.arbitration.MinArbitratorStake(), true, nil
	case calls.GetVotingResults:
		return always(e.arbitration.VotingResults(s.DisputeID))
	case calls.HasVotingEnded:
		return always(e.arbitration.HasVotingEnded(s.DisputeID))

	case calls.GetBalance:
		return always(e.manager.Balance(s.Account))
	case calls.GetBlockTime:
		return now, true, nil
	default:
		return nil, false, fmt.Errorf("core: unsupported query %s.%s: %w", sel.Contract(), sel.Query(), coreerr.ErrInvalidArgument)
	}
}

func found[T any](value T, ok bool, err error) (any, bool, error) {
	if err != nil || !ok {
		return nil, false, err
	}
	return value, true, nil
}

func always[T any](value T, err error) (any, bool, error) {
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}
