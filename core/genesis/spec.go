// Package genesis describes and applies the initial ledger allocations.
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"accordchain/core/types"
)

// Spec is the genesis document, read from JSON or YAML.
type Spec struct {
	GenesisTime string      `json:"genesisTime" yaml:"genesisTime"`
	Alloc       []AllocSpec `json:"alloc" yaml:"alloc"`

	genesisTimestamp time.Time
	balances         []Allocation
}

// AllocSpec funds one account at genesis. Balances are base-unit decimal
// strings.
type AllocSpec struct {
	Account string `json:"account" yaml:"account"`
	Balance string `json:"balance" yaml:"balance"`
}

// Allocation is a validated AllocSpec.
type Allocation struct {
	Account types.Account
	Balance *big.Int
}

// LoadSpec reads and validates a genesis document from path. Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec Spec
	if err := decodeSpec(path, raw, &spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func decodeSpec(path string, raw []byte, spec *Spec) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		return dec.Decode(spec)
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		return dec.Decode(spec)
	}
}

// Validate parses every allocation. A spec must be validated before it is
// applied.
func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	seen := make(map[types.Account]struct{}, len(s.Alloc))
	balances := make([]Allocation, 0, len(s.Alloc))
	for i, entry := range s.Alloc {
		account, err := types.ParseAccount(entry.Account)
		if err != nil {
			return fmt.Errorf("alloc[%d]: %w", i, err)
		}
		if account.IsZero() {
			return fmt.Errorf("alloc[%d]: zero account", i)
		}
		if _, dup := seen[account]; dup {
			return fmt.Errorf("alloc[%d]: duplicate account %s", i, account)
		}
		seen[account] = struct{}{}
		balance, err := types.ParseBalance(entry.Balance)
		if err != nil {
			return fmt.Errorf("alloc[%d]: %w", i, err)
		}
		balances = append(balances, Allocation{Account: account, Balance: balance})
	}
	s.genesisTimestamp = ts
	s.balances = balances
	return nil
}

// GenesisTimestamp returns the parsed genesis time.
func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Allocations returns the validated balances in document order.
func (s *Spec) Allocations() []Allocation {
	out := make([]Allocation, len(s.balances))
	for i, a := range s.balances {
		out[i] = Allocation{Account: a.Account, Balance: types.CloneBalance(a.Balance)}
	}
	return out
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
