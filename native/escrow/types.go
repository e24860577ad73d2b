package escrow

import (
	"fmt"
	"math/big"
	"strings"

	"accordchain/core/types"
)

// MilestoneStatus represents the lifecycle of a single milestone.
type MilestoneStatus uint8

const (
	// MilestonePending marks funded work that has not been delivered.
	MilestonePending MilestoneStatus = iota
	// MilestoneCompleted marks delivered work awaiting approval.
	MilestoneCompleted
	// MilestoneDisputed marks a milestone frozen until a dispute settles.
	MilestoneDisputed
	// MilestoneResolved is terminal: the amount was paid to exactly one party.
	MilestoneResolved
	// MilestoneCancelled is terminal: the amount was refunded to the client.
	MilestoneCancelled
)

var milestoneStatusNames = [...]string{
	MilestonePending:   "Pending",
	MilestoneCompleted: "Completed",
	MilestoneDisputed:  "Disputed",
	MilestoneResolved:  "Resolved",
	MilestoneCancelled: "Cancelled",
}

func (s MilestoneStatus) String() string {
	if int(s) >= len(milestoneStatusNames) {
		return fmt.Sprintf("MilestoneStatus(%d)", uint8(s))
	}
	return milestoneStatusNames[s]
}

// Terminal reports whether no further transition is possible.
func (s MilestoneStatus) Terminal() bool {
	return s == MilestoneResolved || s == MilestoneCancelled
}

// MarshalText encodes the status by name.
func (s MilestoneStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name.
func (s *MilestoneStatus) UnmarshalText(text []byte) error {
	for i, name := range milestoneStatusNames {
		if strings.EqualFold(name, string(text)) {
			*s = MilestoneStatus(i)
			return nil
		}
	}
	return fmt.Errorf("escrow: unknown milestone status %q", text)
}

// Agreement is a funded contract between a client and a provider split into
// milestones.
type Agreement struct {
	ID              uint64                      `json:"id"`
	Client          types.Account               `json:"client"`
	Provider        types.Account               `json:"provider"`
	TotalAmount     *big.Int                    `json:"totalAmount"`
	DepositedAmount *big.Int                    `json:"depositedAmount"`
	ReleasedAmount  *big.Int                    `json:"releasedAmount"`
	RefundedAmount  *big.Int                    `json:"refundedAmount"`
	CreatedAt       uint64                      `json:"createdAt"`
	DisputeTimeout  uint64                      `json:"disputeTimeout"`
	Oracle          types.Option[types.Account] `json:"oracle"`
	IsActive        bool                        `json:"isActive"`
	MilestoneCount  uint32                      `json:"milestoneCount"`
}

// Clone returns a deep copy of the agreement.
func (a *Agreement) Clone() *Agreement {
	if a == nil {
		return nil
	}
	clone := *a
	clone.TotalAmount = types.CloneBalance(a.TotalAmount)
	clone.DepositedAmount = types.CloneBalance(a.DepositedAmount)
	clone.ReleasedAmount = types.CloneBalance(a.ReleasedAmount)
	clone.RefundedAmount = types.CloneBalance(a.RefundedAmount)
	return &clone
}

// IsOracle reports whether account is the agreement oracle.
func (a *Agreement) IsOracle(account types.Account) bool {
	oracle, ok := a.Oracle.Get()
	return ok && oracle == account
}

// Milestone is one payable unit of an agreement.
type Milestone struct {
	Description        string                      `json:"description"`
	Amount             *big.Int                    `json:"amount"`
	Status             MilestoneStatus             `json:"status"`
	Deadline           uint64                      `json:"deadline"`
	OracleVerification bool                        `json:"oracleVerification"`
	Recipient          types.Option[types.Account] `json:"recipient"`
	DisputeID          types.Option[uint64]        `json:"disputeId"`
	DisputedBy         types.Option[types.Account] `json:"disputedBy"`
	SettledAt          uint64                      `json:"settledAt"`
}

// Clone returns a deep copy of the milestone.
func (m *Milestone) Clone() *Milestone {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Amount = types.CloneBalance(m.Amount)
	return &clone
}

// MaxMilestones bounds the number of milestones per agreement.
const MaxMilestones = 128

// CreateParams describes a new agreement. The slices are parallel; the
// OracleVerification slice may be empty.
type CreateParams struct {
	Provider           types.Account
	Descriptions       []string
	Amounts            []*big.Int
	Deadlines          []uint64
	DisputeTimeout     uint64
	Oracle             types.Option[types.Account]
	OracleVerification []bool
}

// Policy carries the configurable escrow parameters.
type Policy struct {
	// RequireVettedOracle demands that the oracle holds an active registry
	// profile.
	RequireVettedOracle bool
}

// DefaultPolicy returns the stock escrow parameters.
func DefaultPolicy() Policy { return Policy{} }
