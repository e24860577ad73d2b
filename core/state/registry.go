package state

import (
	"accordchain/core/types"
	"accordchain/native/registry"
)

// RegistryGetProfile loads the profile of acc.
func (m *Manager) RegistryGetProfile(acc types.Account) (*registry.Profile, bool, error) {
	profile := new(registry.Profile)
	ok, err := m.KVGet(profileKey(acc), profile)
	if err != nil || !ok {
		return nil, false, err
	}
	profile.StakeAmount = types.CloneBalance(profile.StakeAmount)
	return profile, true, nil
}

// RegistryPutProfile stores p under its account.
func (m *Manager) RegistryPutProfile(p *registry.Profile) error {
	record := p.Clone()
	return m.KVPut(profileKey(record.Account), record)
}

// RegistryGetReview loads the review at index for professional.
func (m *Manager) RegistryGetReview(professional types.Account, index uint64) (*registry.Review, bool, error) {
	review := new(registry.Review)
	ok, err := m.KVGet(reviewKey(professional, index), review)
	if err != nil || !ok {
		return nil, false, err
	}
	return review, true, nil
}

// RegistryPutReview stores r at index for professional.
func (m *Manager) RegistryPutReview(professional types.Account, index uint64, r *registry.Review) error {
	return m.KVPut(reviewKey(professional, index), r)
}
