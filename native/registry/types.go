package registry

import (
	"fmt"
	"math/big"
	"strings"

	"accordchain/core/types"
)

// Role classifies a registered professional.
type Role uint8

const (
	RoleLawyer Role = iota
	RoleDoctor
	RoleArbitrator
	RoleNotary
	RoleAuditor
	RoleConsultantOther
)

var roleNames = [...]string{
	RoleLawyer:          "Lawyer",
	RoleDoctor:          "Doctor",
	RoleArbitrator:      "Arbitrator",
	RoleNotary:          "Notary",
	RoleAuditor:         "Auditor",
	RoleConsultantOther: "ConsultantOther",
}

// Roles returns every known role in declaration order.
func Roles() []Role {
	return []Role{RoleLawyer, RoleDoctor, RoleArbitrator, RoleNotary, RoleAuditor, RoleConsultantOther}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return int(r) < len(roleNames) }

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return roleNames[r]
}

// ParseRole resolves a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	trimmed := strings.TrimSpace(s)
	for i, name := range roleNames {
		if strings.EqualFold(name, trimmed) {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("registry: unknown role %q", s)
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("registry: invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Profile is the on-ledger record of a registered professional.
type Profile struct {
	Account         types.Account        `json:"account"`
	Role            Role                 `json:"role"`
	StakeAmount     *big.Int             `json:"stakeAmount"`
	ReputationScore uint64               `json:"reputationScore"`
	TotalJobs       uint64               `json:"totalJobs"`
	SuccessfulJobs  uint64               `json:"successfulJobs"`
	RegisteredAt    uint64               `json:"registeredAt"`
	IsActive        bool                 `json:"isActive"`
	MetadataURI     string               `json:"metadataUri"`
	RatingSum       uint64               `json:"ratingSum"`
	ReviewCount     uint64               `json:"reviewCount"`
	WithdrawnAt     types.Option[uint64] `json:"withdrawnAt"`
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.StakeAmount = types.CloneBalance(p.StakeAmount)
	return &clone
}

// AverageRating returns the exact mean rating, or 0 without reviews.
func (p *Profile) AverageRating() float64 {
	if p == nil || p.ReviewCount == 0 {
		return 0
	}
	return float64(p.RatingSum) / float64(p.ReviewCount)
}

// Review is an immutable rating left for a professional.
type Review struct {
	Reviewer  types.Account `json:"reviewer"`
	Rating    uint8         `json:"rating"`
	Comment   string        `json:"comment"`
	Timestamp uint64        `json:"timestamp"`
}

const (
	// MinRating and MaxRating bound a review rating.
	MinRating = 1
	MaxRating = 5
)

// ReputationScore computes the mean rating in hundredths.
func ReputationScore(ratingSum, reviewCount uint64) uint64 {
	if reviewCount == 0 {
		return 0
	}
	return ratingSum * 100 / reviewCount
}

// Policy carries the configurable registry parameters.
type Policy struct {
	MinStake map[Role]*big.Int
}

// DefaultPolicy returns the stock minimum stakes per role.
func DefaultPolicy() Policy {
	return Policy{MinStake: map[Role]*big.Int{
		RoleLawyer:          types.Tokens(100),
		RoleDoctor:          types.Tokens(100),
		RoleArbitrator:      types.Tokens(150),
		RoleNotary:          types.Tokens(50),
		RoleAuditor:         types.Tokens(100),
		RoleConsultantOther: types.Tokens(50),
	}}
}

// MinStakeFor returns the minimum stake required for role. Roles missing from
// the policy require nothing.
func (p Policy) MinStakeFor(role Role) *big.Int {
	v, ok := p.MinStake[role]
	if !ok || v == nil || v.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
