package types

import "strings"

// Event is the canonical payload of a contract state change. Type is
// namespaced by contract, e.g. "escrow.milestoneReleased".
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Contract returns the namespace part of Type, or "" when Type has none.
func (e Event) Contract() string {
	contract, _, found := strings.Cut(e.Type, ".")
	if !found {
		return ""
	}
	return contract
}
