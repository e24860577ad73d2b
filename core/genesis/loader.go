package genesis

import (
	"fmt"

	"accordchain/core/state"
	"accordchain/storage"
)

// Apply writes the spec's allocations into db exactly once. It reports false
// when genesis had already been applied.
func Apply(db storage.Database, spec *Spec) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return false, fmt.Errorf("database must not be nil")
	}
	if spec.genesisTimestamp.IsZero() {
		if err := spec.Validate(); err != nil {
			return false, err
		}
	}
	tx, err := db.OpenTransaction()
	if err != nil {
		return false, err
	}
	manager := state.NewManager(tx)
	if _, done, err := manager.GenesisTime(); err != nil {
		tx.Discard()
		return false, err
	} else if done {
		tx.Discard()
		return false, nil
	}
	for _, alloc := range spec.balances {
		if err := manager.SetBalance(alloc.Account, alloc.Balance); err != nil {
			tx.Discard()
			return false, fmt.Errorf("genesis: fund %s: %w", alloc.Account, err)
		}
	}
	ts := uint64(spec.genesisTimestamp.Unix())
	if err := manager.SetBlockTime(ts); err != nil {
		tx.Discard()
		return false, err
	}
	if err := manager.MarkGenesis(ts); err != nil {
		tx.Discard()
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("genesis: commit: %w", err)
	}
	return true, nil
}
