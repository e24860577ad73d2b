package escrow

import (
	"strconv"

	"accordchain/core/types"
)

const (
	EventTypeAgreementCreated   = "escrow.agreementCreated"
	EventTypeAgreementClosed    = "escrow.agreementClosed"
	EventTypeMilestoneCompleted = "escrow.milestoneCompleted"
	EventTypeMilestoneReleased  = "escrow.milestoneReleased"
	EventTypeMilestoneDisputed  = "escrow.milestoneDisputed"
	EventTypeDisputeResolved    = "escrow.disputeResolved"
	EventTypeMilestoneCancelled = "escrow.milestoneCancelled"
	EventTypeMilestoneClaimed   = "escrow.milestoneClaimed"
)

func agreementAttributes(a *Agreement) map[string]string {
	attrs := make(map[string]string)
	if a == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(a.ID, 10)
	attrs["client"] = a.Client.String()
	attrs["provider"] = a.Provider.String()
	if oracle, ok := a.Oracle.Get(); ok {
		attrs["oracle"] = oracle.String()
	}
	return attrs
}

// NewAgreementCreatedEvent returns the canonical payload for a funded
// agreement.
func NewAgreementCreatedEvent(a *Agreement) *types.Event {
	attrs := agreementAttributes(a)
	if a != nil {
		attrs["total"] = types.CloneBalance(a.TotalAmount).String()
		attrs["milestones"] = strconv.FormatUint(uint64(a.MilestoneCount), 10)
		attrs["disputeTimeout"] = strconv.FormatUint(a.DisputeTimeout, 10)
	}
	return &types.Event{Type: EventTypeAgreementCreated, Attributes: attrs}
}

// NewAgreementClosedEvent returns the payload emitted once every milestone is
// terminal.
func NewAgreementClosedEvent(a *Agreement) *types.Event {
	attrs := agreementAttributes(a)
	if a != nil {
		attrs["released"] = types.CloneBalance(a.ReleasedAmount).String()
		attrs["refunded"] = types.CloneBalance(a.RefundedAmount).String()
	}
	return &types.Event{Type: EventTypeAgreementClosed, Attributes: attrs}
}

// NewMilestoneEvent returns the payload for a milestone transition.
func NewMilestoneEvent(eventType string, a *Agreement, index uint32, m *Milestone) *types.Event {
	attrs := agreementAttributes(a)
	attrs["milestone"] = strconv.FormatUint(uint64(index), 10)
	if m != nil {
		attrs["status"] = m.Status.String()
		attrs["amount"] = types.CloneBalance(m.Amount).String()
		if recipient, ok := m.Recipient.Get(); ok {
			attrs["recipient"] = recipient.String()
		}
		if disputeID, ok := m.DisputeID.Get(); ok {
			attrs["disputeId"] = strconv.FormatUint(disputeID, 10)
		}
		if by, ok := m.DisputedBy.Get(); ok {
			attrs["disputedBy"] = by.String()
		}
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
