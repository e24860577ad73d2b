package registry

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	coreerr "accordchain/core/errors"
	"accordchain/core/events"
	"accordchain/core/types"
)

var errNilState = errors.New("registry engine: state not configured")

// VaultAccount holds every registry stake.
var VaultAccount = types.AccountFromLabel("accord/registry/vault")

type engineState interface {
	RegistryGetProfile(account types.Account) (*Profile, bool, error)
	RegistryPutProfile(p *Profile) error
	RegistryGetReview(professional types.Account, index uint64) (*Review, bool, error)
	RegistryPutReview(professional types.Account, index uint64, r *Review) error
	Transfer(from, to types.Account, amount *big.Int) error
}

// Engine applies registry operations against the configured state.
type Engine struct {
	state   engineState
	emitter events.Emitter
	policy  Policy
	nowFn   func() uint64
}

// NewEngine creates a registry engine with the default policy and a no-op
// emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		policy:  DefaultPolicy(),
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPolicy replaces the minimum stake table.
func (e *Engine) SetPolicy(policy Policy) { e.policy = policy }

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(registryEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

// MinStake returns the minimum stake for role.
func (e *Engine) MinStake(role Role) *big.Int { return e.policy.MinStakeFor(role) }

// Register creates an active profile for caller and locks stake in the vault.
// An account can register once; a withdrawn profile still blocks a second
// registration.
func (e *Engine) Register(caller types.Account, role Role, metadataURI string, stake *big.Int) (*Profile, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if caller.IsZero() {
		return nil, fmt.Errorf("registry: caller: %w", coreerr.ErrInvalidArgument)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("registry: role %d: %w", uint8(role), coreerr.ErrInvalidArgument)
	}
	if err := types.ValidateBalance(stake); err != nil {
		return nil, fmt.Errorf("registry: stake: %w", coreerr.ErrInvalidArgument)
	}
	_, exists, err := e.state.RegistryGetProfile(caller)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("registry: profile %s: %w", caller, coreerr.ErrAlreadyRegistered)
	}
	amount := types.CloneBalance(stake)
	minimum := e.MinStake(role)
	if amount.Cmp(minimum) < 0 {
		return nil, fmt.Errorf("registry: stake %s below minimum %s for %s: %w", amount, minimum, role, coreerr.ErrInsufficientStake)
	}
	if err := e.state.Transfer(caller, VaultAccount, amount); err != nil {
		return nil, err
	}
	profile := &Profile{
		Account:      caller,
		Role:         role,
		StakeAmount:  amount,
		RegisteredAt: e.now(),
		IsActive:     true,
		MetadataURI:  strings.TrimSpace(metadataURI),
	}
	if err := e.state.RegistryPutProfile(profile); err != nil {
		return nil, err
	}
	e.emit(NewRegisteredEvent(profile))
	return profile.Clone(), nil
}

func (e *Engine) activeProfile(account types.Account) (*Profile, error) {
	profile, ok, err := e.state.RegistryGetProfile(account)
	if err != nil {
		return nil, err
	}
	if !ok || profile == nil {
		return nil, fmt.Errorf("registry: profile %s: %w", account, coreerr.ErrNotFound)
	}
	if !profile.IsActive {
		return nil, fmt.Errorf("registry: profile %s inactive: %w", account, coreerr.ErrInvalidState)
	}
	return profile, nil
}

// IncreaseStake adds amount to the caller's stake.
func (e *Engine) IncreaseStake(caller types.Account, amount *big.Int) (*Profile, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("registry: amount must be positive: %w", coreerr.ErrInvalidArgument)
	}
	profile, err := e.activeProfile(caller)
	if err != nil {
		return nil, err
	}
	next, err := types.AddBalance(profile.StakeAmount, amount)
	if err != nil {
		return nil, fmt.Errorf("registry: stake: %v: %w", err, coreerr.ErrInvalidArgument)
	}
	if err := e.state.Transfer(caller, VaultAccount, amount); err != nil {
		return nil, err
	}
	profile.StakeAmount = next
	if err := e.state.RegistryPutProfile(profile); err != nil {
		return nil, err
	}
	e.emit(NewStakeIncreasedEvent(profile))
	return profile.Clone(), nil
}

// SubmitReview appends a review for professional and refreshes the reputation
// score. It returns the index of the new review.
func (e *Engine) SubmitReview(caller, professional types.Account, rating uint8, comment string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if rating < MinRating || rating > MaxRating {
		return 0, fmt.Errorf("registry: rating %d outside %d..%d: %w", rating, MinRating, MaxRating, coreerr.ErrInvalidRating)
	}
	if caller.IsZero() {
		return 0, fmt.Errorf("registry: caller: %w", coreerr.ErrInvalidArgument)
	}
	profile, ok, err := e.state.RegistryGetProfile(professional)
	if err != nil {
		return 0, err
	}
	if !ok || profile == nil {
		return 0, fmt.Errorf("registry: profile %s: %w", professional, coreerr.ErrNotFound)
	}
	if caller == professional {
		return 0, fmt.Errorf("registry: self review: %w", coreerr.ErrNotAuthorized)
	}
	if !profile.IsActive {
		return 0, fmt.Errorf("registry: profile %s inactive: %w", professional, coreerr.ErrInvalidState)
	}
	review := &Review{
		Reviewer:  caller,
		Rating:    rating,
		Comment:   comment,
		Timestamp: e.now(),
	}
	index := profile.ReviewCount
	if err := e.state.RegistryPutReview(professional, index, review); err != nil {
		return 0, err
	}
	profile.ReviewCount++
	profile.RatingSum += uint64(rating)
	profile.ReputationScore = ReputationScore(profile.RatingSum, profile.ReviewCount)
	if err := e.state.RegistryPutProfile(profile); err != nil {
		return 0, err
	}
	e.emit(NewReviewedEvent(professional, index, review, profile.ReputationScore))
	return index, nil
}

// WithdrawStake returns the full stake to the caller and deactivates the
// profile. Reviews and job counters are kept.
func (e *Engine) WithdrawStake(caller types.Account) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	profile, err := e.activeProfile(caller)
	if err != nil {
		return nil, err
	}
	amount := types.CloneBalance(profile.StakeAmount)
	if err := e.state.Transfer(VaultAccount, caller, amount); err != nil {
		return nil, err
	}
	profile.StakeAmount = big.NewInt(0)
	profile.IsActive = false
	profile.WithdrawnAt = types.Some(e.now())
	if err := e.state.RegistryPutProfile(profile); err != nil {
		return nil, err
	}
	e.emit(NewStakeWithdrawnEvent(profile))
	return amount, nil
}

// RecordJob books a completed engagement for account. Accounts without a
// profile are ignored.
func (e *Engine) RecordJob(account types.Account, successful bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	profile, ok, err := e.state.RegistryGetProfile(account)
	if err != nil {
		return err
	}
	if !ok || profile == nil {
		return nil
	}
	profile.TotalJobs++
	if successful {
		profile.SuccessfulJobs++
	}
	if err := e.state.RegistryPutProfile(profile); err != nil {
		return err
	}
	e.emit(NewJobRecordedEvent(profile, successful))
	return nil
}

// Profile returns the stored profile for account.
func (e *Engine) Profile(account types.Account) (*Profile, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	profile, ok, err := e.state.RegistryGetProfile(account)
	if err != nil || !ok {
		return nil, false, err
	}
	return profile.Clone(), true, nil
}

// Review returns the review at index for professional.
func (e *Engine) Review(professional types.Account, index uint64) (*Review, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.RegistryGetReview(professional, index)
}

// ReviewCount returns the number of reviews recorded for professional.
func (e *Engine) ReviewCount(professional types.Account) (uint64, error) {
	profile, ok, err := e.Profile(professional)
	if err != nil || !ok {
		return 0, err
	}
	return profile.ReviewCount, nil
}

// IsActiveProfessional reports whether account holds an active profile.
func (e *Engine) IsActiveProfessional(account types.Account) (bool, error) {
	profile, ok, err := e.Profile(account)
	if err != nil || !ok {
		return false, err
	}
	return profile.IsActive, nil
}
