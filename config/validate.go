package config

import "fmt"

// MinVotingPeriodSeconds is the shortest voting or appeal period accepted.
var MinVotingPeriodSeconds = uint64(60)

// Validate checks every section, including that stakes and genesis balances
// parse.
func (c *Config) Validate() error {
	if _, err := c.Registry.Policy(); err != nil {
		return err
	}
	if _, err := c.Arbitration.Policy(); err != nil {
		return err
	}
	a := c.Arbitration
	if a.VotingPeriodSeconds < MinVotingPeriodSeconds {
		return fmt.Errorf("arbitration: VotingPeriodSeconds must be at least %d", MinVotingPeriodSeconds)
	}
	if a.AppealVotingPeriodSeconds < MinVotingPeriodSeconds {
		return fmt.Errorf("arbitration: AppealVotingPeriodSeconds must be at least %d", MinVotingPeriodSeconds)
	}
	if a.AppealWindowSeconds == 0 {
		return fmt.Errorf("arbitration: AppealWindowSeconds must be positive")
	}
	if c.RPC.RequestsPerMinute < 0 {
		return fmt.Errorf("rpc: RequestsPerMinute must not be negative")
	}
	if c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: Burst must not be negative")
	}
	if c.RPC.MaxRequestBytes <= 0 {
		return fmt.Errorf("rpc: MaxRequestBytes must be positive")
	}
	if c.GenesisFile == "" {
		if _, err := c.GenesisSpec(); err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
	}
	return nil
}
