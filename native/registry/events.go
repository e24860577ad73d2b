package registry

import (
	"strconv"

	"accordchain/core/types"
)

const (
	EventTypeRegistered     = "registry.registered"
	EventTypeStakeIncreased = "registry.stakeIncreased"
	EventTypeReviewed       = "registry.reviewSubmitted"
	EventTypeStakeWithdrawn = "registry.stakeWithdrawn"
	EventTypeJobRecorded    = "registry.jobRecorded"
)

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

func profileEvent(eventType string, p *Profile) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["account"] = p.Account.String()
		attrs["role"] = p.Role.String()
		attrs["stake"] = types.CloneBalance(p.StakeAmount).String()
		attrs["active"] = strconv.FormatBool(p.IsActive)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewRegisteredEvent returns the payload emitted when a professional registers.
func NewRegisteredEvent(p *Profile) *types.Event { return profileEvent(EventTypeRegistered, p) }

// NewStakeIncreasedEvent returns the payload emitted on additional stake.
func NewStakeIncreasedEvent(p *Profile) *types.Event {
	return profileEvent(EventTypeStakeIncreased, p)
}

// NewStakeWithdrawnEvent returns the payload emitted when a professional exits.
func NewStakeWithdrawnEvent(p *Profile) *types.Event {
	return profileEvent(EventTypeStakeWithdrawn, p)
}

// NewReviewedEvent returns the payload emitted for a new review.
func NewReviewedEvent(professional types.Account, index uint64, r *Review, score uint64) *types.Event {
	attrs := map[string]string{
		"professional": professional.String(),
		"index":        strconv.FormatUint(index, 10),
		"reputation":   strconv.FormatUint(score, 10),
	}
	if r != nil {
		attrs["reviewer"] = r.Reviewer.String()
		attrs["rating"] = strconv.FormatUint(uint64(r.Rating), 10)
	}
	return &types.Event{Type: EventTypeReviewed, Attributes: attrs}
}

// NewJobRecordedEvent returns the payload emitted when a job outcome is booked.
func NewJobRecordedEvent(p *Profile, successful bool) *types.Event {
	attrs := map[string]string{"successful": strconv.FormatBool(successful)}
	if p != nil {
		attrs["account"] = p.Account.String()
		attrs["totalJobs"] = strconv.FormatUint(p.TotalJobs, 10)
		attrs["successfulJobs"] = strconv.FormatUint(p.SuccessfulJobs, 10)
	}
	return &types.Event{Type: EventTypeJobRecorded, Attributes: attrs}
}
