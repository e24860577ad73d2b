package state

// BlockTime returns the timestamp of the last applied transaction.
func (m *Manager) BlockTime() (uint64, error) {
	var ts uint64
	if _, err := m.KVGet([]byte(metaBlockTimeKey), &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

// SetBlockTime records the timestamp of the transaction being applied.
func (m *Manager) SetBlockTime(ts uint64) error {
	return m.KVPut([]byte(metaBlockTimeKey), ts)
}

// NextNonce returns a fresh per-ledger transaction nonce.
func (m *Manager) NextNonce() (uint64, error) {
	return m.NextID(metaNonceKey)
}

// GenesisTime reports the timestamp genesis was applied at, if it has been.
func (m *Manager) GenesisTime() (uint64, bool, error) {
	var ts uint64
	ok, err := m.KVGet([]byte(metaGenesisKey), &ts)
	if err != nil {
		return 0, false, err
	}
	return ts, ok, nil
}

// MarkGenesis records that genesis allocations were written.
func (m *Manager) MarkGenesis(ts uint64) error {
	return m.KVPut([]byte(metaGenesisKey), ts)
}
