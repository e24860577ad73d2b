package state

import (
	"accordchain/core/types"
	"accordchain/native/escrow"
)

// EscrowNextAgreementID allocates the next agreement id.
func (m *Manager) EscrowNextAgreementID() (uint64, error) {
	return m.NextID(counterAgreements)
}

// EscrowGetAgreement loads an agreement by id.
func (m *Manager) EscrowGetAgreement(id uint64) (*escrow.Agreement, bool, error) {
	agreement := new(escrow.Agreement)
	ok, err := m.KVGet(agreementKey(id), agreement)
	if err != nil || !ok {
		return nil, false, err
	}
	return agreement.Clone(), true, nil
}

// EscrowPutAgreement stores an agreement.
func (m *Manager) EscrowPutAgreement(a *escrow.Agreement) error {
	record := a.Clone()
	return m.KVPut(agreementKey(record.ID), record)
}

// EscrowGetMilestone loads one milestone of an agreement.
func (m *Manager) EscrowGetMilestone(id uint64, index uint32) (*escrow.Milestone, bool, error) {
	milestone := new(escrow.Milestone)
	ok, err := m.KVGet(milestoneKey(id, index), milestone)
	if err != nil || !ok {
		return nil, false, err
	}
	milestone.Amount = types.CloneBalance(milestone.Amount)
	return milestone, true, nil
}

// EscrowPutMilestone stores one milestone of an agreement.
func (m *Manager) EscrowPutMilestone(id uint64, index uint32, ms *escrow.Milestone) error {
	return m.KVPut(milestoneKey(id, index), ms.Clone())
}
