package state

import (
	"fmt"

	"accordchain/core/types"
	"accordchain/native/arbitration"
)

// ArbitrationNextDisputeID allocates the next dispute id.
func (m *Manager) ArbitrationNextDisputeID() (uint64, error) {
	return m.NextID(counterDisputes)
}

// ArbitrationGetDispute loads a dispute by id.
func (m *Manager) ArbitrationGetDispute(id uint64) (*arbitration.Dispute, bool, error) {
	dispute := new(arbitration.Dispute)
	ok, err := m.KVGet(disputeKey(id), dispute)
	if err != nil || !ok {
		return nil, false, err
	}
	return dispute.Clone(), true, nil
}

// ArbitrationPutDispute stores a dispute.
func (m *Manager) ArbitrationPutDispute(d *arbitration.Dispute) error {
	record := d.Clone()
	return m.KVPut(disputeKey(record.ID), record)
}

// ArbitrationGetArbitrator loads an arbitrator record.
func (m *Manager) ArbitrationGetArbitrator(acc types.Account) (*arbitration.Arbitrator, bool, error) {
	arb := new(arbitration.Arbitrator)
	ok, err := m.KVGet(arbitratorKey(acc), arb)
	if err != nil || !ok {
		return nil, false, err
	}
	return arb.Clone(), true, nil
}

// ArbitrationPutArbitrator stores an arbitrator record.
func (m *Manager) ArbitrationPutArbitrator(a *arbitration.Arbitrator) error {
	record := a.Clone()
	return m.KVPut(arbitratorKey(record.Account), record)
}

// ArbitrationGetVote loads the ballot of acc for a dispute round.
func (m *Manager) ArbitrationGetVote(id uint64, round uint32, acc types.Account) (*arbitration.Vote, bool, error) {
	vote := new(arbitration.Vote)
	ok, err := m.KVGet(voteKey(id, round, acc), vote)
	if err != nil || !ok {
		return nil, false, err
	}
	vote.Weight = types.CloneBalance(vote.Weight)
	return vote, true, nil
}

// ArbitrationPutVote stores a ballot and indexes the voter for the round.
// Ballots are immutable once written.
func (m *Manager) ArbitrationPutVote(v *arbitration.Vote) error {
	key := voteKey(v.DisputeID, v.Round, v.Arbitrator)
	exists, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("state: vote %d/%d/%s already stored", v.DisputeID, v.Round, v.Arbitrator)
	}
	if err := m.KVPut(key, v); err != nil {
		return err
	}
	return m.KVAppend(votersKey(v.DisputeID, v.Round), v.Arbitrator.Bytes())
}

// ArbitrationListVoters returns the voters of a dispute round in casting order.
func (m *Manager) ArbitrationListVoters(id uint64, round uint32) ([]types.Account, error) {
	var raw [][]byte
	if err := m.KVGetList(votersKey(id, round), &raw); err != nil {
		return nil, err
	}
	out := make([]types.Account, 0, len(raw))
	for _, entry := range raw {
		acc, err := types.AccountFromBytes(entry)
		if err != nil {
			return nil, fmt.Errorf("state: voters index: %w", err)
		}
		out = append(out, acc)
	}
	return out, nil
}
