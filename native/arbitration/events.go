package arbitration

import (
	"strconv"

	"accordchain/core/types"
)

const (
	EventTypeArbitratorRegistered     = "arbitration.arbitratorRegistered"
	EventTypeArbitratorStakeIncreased = "arbitration.arbitratorStakeIncreased"
	EventTypeArbitratorWithdrawn      = "arbitration.arbitratorWithdrawn"
	EventTypeDisputeCreated           = "arbitration.disputeCreated"
	EventTypeVotingStarted            = "arbitration.votingStarted"
	EventTypeVoteCast                 = "arbitration.voteCast"
	EventTypeDisputeResolved          = "arbitration.disputeResolved"
	EventTypeDisputeAppealed          = "arbitration.disputeAppealed"
	EventTypeDisputeCancelled         = "arbitration.disputeCancelled"
)

type arbitrationEvent struct {
	evt *types.Event
}

func (a arbitrationEvent) EventType() string {
	if a.evt == nil {
		return ""
	}
	return a.evt.Type
}

func (a arbitrationEvent) Event() *types.Event { return a.evt }

// NewArbitratorEvent returns the payload for arbitrator lifecycle changes.
func NewArbitratorEvent(eventType string, a *Arbitrator) *types.Event {
	attrs := make(map[string]string)
	if a != nil {
		attrs["arbitrator"] = a.Account.String()
		attrs["stake"] = types.CloneBalance(a.Stake).String()
		attrs["active"] = strconv.FormatBool(a.IsActive)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewDisputeEvent returns the payload for dispute status changes.
func NewDisputeEvent(eventType string, d *Dispute) *types.Event {
	attrs := make(map[string]string)
	if d == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(d.ID, 10)
	attrs["claimant"] = d.Claimant.String()
	attrs["defendant"] = d.Defendant.String()
	attrs["status"] = d.Status.String()
	attrs["round"] = strconv.FormatUint(uint64(d.Round), 10)
	if d.VotingEndsAt != 0 {
		attrs["votingEndsAt"] = strconv.FormatUint(d.VotingEndsAt, 10)
	}
	if side, ok := d.Resolution.Get(); ok {
		attrs["resolution"] = side.String()
		attrs["votesForClaimant"] = types.CloneBalance(d.VotesForClaimant).String()
		attrs["votesForDefendant"] = types.CloneBalance(d.VotesForDefendant).String()
	}
	if origin, ok := d.Origin.Get(); ok {
		attrs["agreementId"] = strconv.FormatUint(origin.AgreementID, 10)
		attrs["milestoneIndex"] = strconv.FormatUint(uint64(origin.MilestoneIndex), 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewVoteEvent returns the payload for a cast ballot.
func NewVoteEvent(v *Vote) *types.Event {
	attrs := make(map[string]string)
	if v != nil {
		attrs["id"] = strconv.FormatUint(v.DisputeID, 10)
		attrs["round"] = strconv.FormatUint(uint64(v.Round), 10)
		attrs["arbitrator"] = v.Arbitrator.String()
		attrs["choice"] = v.Choice.String()
		attrs["weight"] = types.CloneBalance(v.Weight).String()
	}
	return &types.Event{Type: EventTypeVoteCast, Attributes: attrs}
}
