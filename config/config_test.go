package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"accordchain/core/types"
	"accordchain/native/registry"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8545", cfg.RPCAddress)
	require.Equal(t, "info", cfg.LogLevel)
	require.FileExists(t, path)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Arbitration, reloaded.Arbitration)
	require.Equal(t, cfg.Registry.MinStake, reloaded.Registry.MinStake)
}

func TestLoadOverridesAndPolicies(t *testing.T) {
	alice := types.AccountFromLabel("alice")
	path := writeConfig(t, `
RPCAddress = "127.0.0.1:9000"
DataDir = "/tmp/accord"

[registry.MinStake]
lawyer = "5000"

[escrow]
RequireVettedOracle = true

[arbitration]
MinArbitratorStake = "42"
VotingPeriodSeconds = 3600

[rpc]
RequestsPerMinute = 30
Burst = 5

[[genesis]]
Account = "`+alice.String()+`"
Balance = "1000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.RPCAddress)

	regPolicy, err := cfg.Registry.Policy()
	require.NoError(t, err)
	require.Equal(t, "5000", regPolicy.MinStake[registry.RoleLawyer].String())
	require.Equal(t, types.Tokens(150).String(), regPolicy.MinStake[registry.RoleArbitrator].String())

	require.True(t, cfg.Escrow.Policy().RequireVettedOracle)

	arbPolicy, err := cfg.Arbitration.Policy()
	require.NoError(t, err)
	require.Equal(t, "42", arbPolicy.MinArbitratorStake.String())
	require.Equal(t, uint64(3600), arbPolicy.VotingPeriodSeconds)
	require.NotZero(t, arbPolicy.AppealWindowSeconds)

	env := map[string]string{"ACCORD_RPC_TOKEN": "token", "ACCORD_RPC_JWT_SECRET": "hmac"}
	server := cfg.RPC.ServerConfig(func(key string) string { return env[key] })
	require.Equal(t, "token", server.AuthToken)
	require.Equal(t, "hmac", server.JWT.Secret)
	require.Equal(t, 30.0, server.RateLimit.RequestsPerMinute)
	require.Equal(t, int64(1<<20), server.MaxRequestBytes)

	spec, err := cfg.GenesisSpec()
	require.NoError(t, err)
	allocs := spec.Allocations()
	require.Len(t, allocs, 1)
	require.Equal(t, alice, allocs[0].Account)
	require.Equal(t, "1000", allocs[0].Balance.String())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
RPCAddress = ":1"
Bogus = true
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "Bogus")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown role":    func(c *Config) { c.Registry.MinStake["wizard"] = "1" },
		"bad stake":       func(c *Config) { c.Registry.MinStake["Lawyer"] = "-5" },
		"bad arb stake":   func(c *Config) { c.Arbitration.MinArbitratorStake = "abc" },
		"short voting":    func(c *Config) { c.Arbitration.VotingPeriodSeconds = 10 },
		"short appeal":    func(c *Config) { c.Arbitration.AppealVotingPeriodSeconds = 10 },
		"no window":       func(c *Config) { c.Arbitration.AppealWindowSeconds = 0 },
		"negative rate":   func(c *Config) { c.RPC.RequestsPerMinute = -1 },
		"negative burst":  func(c *Config) { c.RPC.Burst = -1 },
		"no body limit":   func(c *Config) { c.RPC.MaxRequestBytes = 0 },
		"bad genesis acc": func(c *Config) { c.Genesis = []GenesisAlloc{{Account: "nope", Balance: "1"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}

func TestTelemetryConversion(t *testing.T) {
	tel := Telemetry{Endpoint: " collector:4318 ", Headers: "a=b", Traces: true}
	cfg := tel.OTel("accordd", "test")
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.Equal(t, map[string]string{"a": "b"}, cfg.Headers)
	require.True(t, cfg.Enabled())
}
