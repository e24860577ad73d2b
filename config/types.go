package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"accordchain/core/genesis"
	"accordchain/core/types"
	"accordchain/native/arbitration"
	"accordchain/native/escrow"
	"accordchain/native/registry"
	"accordchain/observability/otel"
	"accordchain/rpc"
)

// Registry holds the minimum stake per role in base units.
type Registry struct {
	MinStake map[string]string `toml:"MinStake"`
}

func (r *Registry) applyDefaults() {
	if r.MinStake == nil {
		r.MinStake = map[string]string{}
	}
	configured := make(map[registry.Role]bool, len(r.MinStake))
	for name := range r.MinStake {
		if role, err := registry.ParseRole(name); err == nil {
			configured[role] = true
		}
	}
	for role, amount := range registry.DefaultPolicy().MinStake {
		if !configured[role] {
			r.MinStake[role.String()] = amount.String()
		}
	}
}

// Policy converts the section into registry parameters.
func (r Registry) Policy() (registry.Policy, error) {
	policy := registry.Policy{MinStake: make(map[registry.Role]*big.Int, len(r.MinStake))}
	for name, amount := range r.MinStake {
		role, err := registry.ParseRole(name)
		if err != nil {
			return policy, fmt.Errorf("registry.MinStake: %w", err)
		}
		value, err := types.ParseBalance(amount)
		if err != nil {
			return policy, fmt.Errorf("registry.MinStake[%s]: %w", name, err)
		}
		policy.MinStake[role] = value
	}
	return policy, nil
}

type Escrow struct {
	RequireVettedOracle bool `toml:"RequireVettedOracle"`
}

func (e Escrow) Policy() escrow.Policy {
	return escrow.Policy{RequireVettedOracle: e.RequireVettedOracle}
}

type Arbitration struct {
	MinArbitratorStake         string `toml:"MinArbitratorStake"`
	VotingPeriodSeconds        uint64 `toml:"VotingPeriodSeconds"`
	AppealWindowSeconds        uint64 `toml:"AppealWindowSeconds"`
	AppealVotingPeriodSeconds  uint64 `toml:"AppealVotingPeriodSeconds"`
	InitialReputation          uint64 `toml:"InitialReputation"`
	ReputationReward           uint64 `toml:"ReputationReward"`
	RequireProfessionalProfile bool   `toml:"RequireProfessionalProfile"`
}

func (a *Arbitration) applyDefaults() {
	def := arbitration.DefaultPolicy()
	if strings.TrimSpace(a.MinArbitratorStake) == "" {
		a.MinArbitratorStake = def.MinArbitratorStake.String()
	}
	if a.VotingPeriodSeconds == 0 {
		a.VotingPeriodSeconds = def.VotingPeriodSeconds
	}
	if a.AppealWindowSeconds == 0 {
		a.AppealWindowSeconds = def.AppealWindowSeconds
	}
	if a.AppealVotingPeriodSeconds == 0 {
		a.AppealVotingPeriodSeconds = def.AppealVotingPeriodSeconds
	}
	if a.InitialReputation == 0 {
		a.InitialReputation = def.InitialReputation
	}
	if a.ReputationReward == 0 {
		a.ReputationReward = def.ReputationReward
	}
}

// Policy converts the section into arbitration parameters.
func (a Arbitration) Policy() (arbitration.Policy, error) {
	stake, err := types.ParseBalance(a.MinArbitratorStake)
	if err != nil {
		return arbitration.Policy{}, fmt.Errorf("arbitration.MinArbitratorStake: %w", err)
	}
	return arbitration.Policy{
		MinArbitratorStake:         stake,
		VotingPeriodSeconds:        a.VotingPeriodSeconds,
		AppealWindowSeconds:        a.AppealWindowSeconds,
		AppealVotingPeriodSeconds:  a.AppealVotingPeriodSeconds,
		InitialReputation:          a.InitialReputation,
		ReputationReward:           a.ReputationReward,
		RequireProfessionalProfile: a.RequireProfessionalProfile,
	}, nil
}

// RPC tunes the JSON-RPC server. Secrets are read from the environment
// variables named here so they stay out of the file.
type RPC struct {
	AuthTokenEnv        string  `toml:"AuthTokenEnv"`
	JWTSecretEnv        string  `toml:"JWTSecretEnv"`
	JWTIssuer           string  `toml:"JWTIssuer"`
	JWTClockSkewSeconds uint64  `toml:"JWTClockSkewSeconds"`
	RequestsPerMinute   float64 `toml:"RequestsPerMinute"`
	Burst               int     `toml:"Burst"`
	MaxRequestBytes     int64   `toml:"MaxRequestBytes"`
}

func (r *RPC) applyDefaults() {
	if strings.TrimSpace(r.AuthTokenEnv) == "" {
		r.AuthTokenEnv = "ACCORD_RPC_TOKEN"
	}
	if strings.TrimSpace(r.JWTSecretEnv) == "" {
		r.JWTSecretEnv = "ACCORD_RPC_JWT_SECRET"
	}
	if r.MaxRequestBytes == 0 {
		r.MaxRequestBytes = 1 << 20
	}
}

// ServerConfig converts the section into rpc server settings, resolving the
// secrets through getenv.
func (r RPC) ServerConfig(getenv func(string) string) rpc.Config {
	return rpc.Config{
		AuthToken: getenv(r.AuthTokenEnv),
		JWT: rpc.JWTConfig{
			Secret:    getenv(r.JWTSecretEnv),
			Issuer:    r.JWTIssuer,
			ClockSkew: time.Duration(r.JWTClockSkewSeconds) * time.Second,
		},
		RateLimit:       rpc.RateLimit{RequestsPerMinute: r.RequestsPerMinute, Burst: r.Burst},
		MaxRequestBytes: r.MaxRequestBytes,
	}
}

type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers uses the OTEL form key=value,other=value.
	Headers string `toml:"Headers"`
	Traces  bool   `toml:"Traces"`
	Metrics bool   `toml:"Metrics"`
}

// OTel converts the section into exporter settings for service.
func (t Telemetry) OTel(service, env string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: env,
		Endpoint:    strings.TrimSpace(t.Endpoint),
		Insecure:    t.Insecure,
		Headers:     otel.ParseHeaders(t.Headers),
		Metrics:     t.Metrics,
		Traces:      t.Traces,
	}
}

// GenesisAlloc funds one account at genesis. Balance is in base units.
type GenesisAlloc struct {
	Account string `toml:"Account"`
	Balance string `toml:"Balance"`
}

// GenesisSpec returns the genesis document to apply: the GenesisFile when
// set, otherwise the inline [[genesis]] entries.
func (c *Config) GenesisSpec() (*genesis.Spec, error) {
	if path := strings.TrimSpace(c.GenesisFile); path != "" {
		return genesis.LoadSpec(path)
	}
	spec := &genesis.Spec{}
	for _, alloc := range c.Genesis {
		spec.Alloc = append(spec.Alloc, genesis.AllocSpec{Account: alloc.Account, Balance: alloc.Balance})
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}
