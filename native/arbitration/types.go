package arbitration

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"lukechampine.com/blake3"

	"accordchain/core/types"
)

// DisputeStatus tracks the lifecycle of a dispute.
type DisputeStatus uint8

const (
	DisputeOpen DisputeStatus = iota
	DisputeVoting
	DisputeResolved
	DisputeAppealed
	DisputeCancelled
)

var statusNames = [...]string{
	DisputeOpen:      "Open",
	DisputeVoting:    "Voting",
	DisputeResolved:  "Resolved",
	DisputeAppealed:  "Appealed",
	DisputeCancelled: "Cancelled",
}

func (s DisputeStatus) String() string {
	if int(s) >= len(statusNames) {
		return fmt.Sprintf("DisputeStatus(%d)", uint8(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s DisputeStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name.
func (s *DisputeStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if strings.EqualFold(name, string(text)) {
			*s = DisputeStatus(i)
			return nil
		}
	}
	return fmt.Errorf("arbitration: unknown dispute status %q", text)
}

// Side names a party to a dispute. It doubles as the vote choice and the
// resolution of a dispute.
type Side uint8

const (
	SideClaimant Side = iota
	SideDefendant
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideClaimant || s == SideDefendant }

func (s Side) String() string {
	switch s {
	case SideClaimant:
		return "FavorClaimant"
	case SideDefendant:
		return "FavorDefendant"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// ParseSide accepts "FavorClaimant"/"claimant" and "FavorDefendant"/"defendant".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "favorclaimant", "claimant":
		return SideClaimant, nil
	case "favordefendant", "defendant":
		return SideDefendant, nil
	default:
		return 0, fmt.Errorf("arbitration: unknown side %q", s)
	}
}

// MarshalText encodes the side by name.
func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("arbitration: invalid side %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a side name.
func (s *Side) UnmarshalText(text []byte) error {
	parsed, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Origin links a dispute back to the escrow milestone that raised it.
type Origin struct {
	AgreementID    uint64 `json:"agreementId"`
	MilestoneIndex uint32 `json:"milestoneIndex"`
}

// Dispute is a claim between two parties decided by stake-weighted vote.
type Dispute struct {
	ID                uint64               `json:"id"`
	Claimant          types.Account        `json:"claimant"`
	Defendant         types.Account        `json:"defendant"`
	Description       string               `json:"description"`
	EvidenceURI       string               `json:"evidenceUri"`
	EvidenceDigest    Digest               `json:"evidenceDigest"`
	Status            DisputeStatus        `json:"status"`
	CreatedAt         uint64               `json:"createdAt"`
	VotingEndsAt      uint64               `json:"votingEndsAt"`
	VotesForClaimant  *big.Int             `json:"votesForClaimant"`
	VotesForDefendant *big.Int             `json:"votesForDefendant"`
	Resolution        types.Option[Side]   `json:"resolution"`
	CanAppeal         bool                 `json:"canAppeal"`
	Round             uint32               `json:"round"`
	ResolvedAt        uint64               `json:"resolvedAt"`
	AppealDeadline    uint64               `json:"appealDeadline"`
	Origin            types.Option[Origin] `json:"origin"`
}

// Clone returns a deep copy of the dispute.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	clone := *d
	clone.VotesForClaimant = types.CloneBalance(d.VotesForClaimant)
	clone.VotesForDefendant = types.CloneBalance(d.VotesForDefendant)
	return &clone
}

// Party returns the account on the given side.
func (d *Dispute) Party(side Side) types.Account {
	if side == SideClaimant {
		return d.Claimant
	}
	return d.Defendant
}

// IsParty reports whether account is the claimant or the defendant.
func (d *Dispute) IsParty(account types.Account) bool {
	return account == d.Claimant || account == d.Defendant
}

// Arbitrator is a staked account eligible to vote on disputes.
type Arbitrator struct {
	Account              types.Account `json:"account"`
	Stake                *big.Int      `json:"stake"`
	DisputesParticipated uint64        `json:"disputesParticipated"`
	DisputesResolved     uint64        `json:"disputesResolved"`
	Reputation           uint64        `json:"reputation"`
	IsActive             bool          `json:"isActive"`
	PendingVotes         uint64        `json:"pendingVotes"`
	RegisteredAt         uint64        `json:"registeredAt"`
}

// Clone returns a deep copy of the arbitrator.
func (a *Arbitrator) Clone() *Arbitrator {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Stake = types.CloneBalance(a.Stake)
	return &clone
}

// Vote is an immutable ballot for one round of a dispute.
type Vote struct {
	DisputeID  uint64        `json:"disputeId"`
	Round      uint32        `json:"round"`
	Arbitrator types.Account `json:"arbitrator"`
	Choice     Side          `json:"choice"`
	Weight     *big.Int      `json:"weight"`
	CastAt     uint64        `json:"castAt"`
}

// VotingResults summarises the tallies of the current round.
type VotingResults struct {
	ForClaimant  *big.Int `json:"forClaimant"`
	ForDefendant *big.Int `json:"forDefendant"`
	Round        uint32   `json:"round"`
	Ended        bool     `json:"ended"`
}

// Verdict is the settlement view of a dispute consumed by escrow.
type Verdict struct {
	Winner types.Account
	Side   Side
	Final  bool
}

// Digest is the blake3 hash of an evidence reference.
type Digest [32]byte

// EvidenceDigest hashes an evidence reference.
func EvidenceDigest(uri string) Digest {
	return Digest(blake3.Sum256([]byte(uri)))
}

// MarshalText encodes the digest as hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(d[:])), nil
}

// UnmarshalText decodes a hex digest.
func (d *Digest) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("arbitration: invalid digest: %w", err)
	}
	if len(raw) != len(d) {
		return fmt.Errorf("arbitration: digest must be %d bytes", len(d))
	}
	copy(d[:], raw)
	return nil
}

const day = 24 * 60 * 60

// Policy carries the configurable arbitration parameters.
type Policy struct {
	MinArbitratorStake         *big.Int
	VotingPeriodSeconds        uint64
	AppealWindowSeconds        uint64
	AppealVotingPeriodSeconds  uint64
	InitialReputation          uint64
	ReputationReward           uint64
	RequireProfessionalProfile bool
}

// DefaultPolicy returns the stock arbitration parameters.
func DefaultPolicy() Policy {
	return Policy{
		MinArbitratorStake:        types.Tokens(100),
		VotingPeriodSeconds:       7 * day,
		AppealWindowSeconds:       3 * day,
		AppealVotingPeriodSeconds: 7 * day,
		InitialReputation:         100,
		ReputationReward:          10,
	}
}
