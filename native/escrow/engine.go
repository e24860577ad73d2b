package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	coreerr "accordchain/core/errors"
	"accordchain/core/events"
	"accordchain/core/types"
	"accordchain/native/arbitration"
)

var errNilState = errors.New("escrow engine: state not configured")

// VaultAccount holds every deposited escrow amount until it is settled.
var VaultAccount = types.AccountFromLabel("accord/escrow/vault")

type engineState interface {
	EscrowNextAgreementID() (uint64, error)
	EscrowGetAgreement(id uint64) (*Agreement, bool, error)
	EscrowPutAgreement(a *Agreement) error
	EscrowGetMilestone(id uint64, index uint32) (*Milestone, bool, error)
	EscrowPutMilestone(id uint64, index uint32, m *Milestone) error
	Transfer(from, to types.Account, amount *big.Int) error
}

// Registry is the slice of the professional registry escrow relies on.
type Registry interface {
	IsActiveProfessional(account types.Account) (bool, error)
	RecordJob(account types.Account, successful bool) error
}

// Court opens, reads and closes correlated arbitration disputes.
type Court interface {
	OpenEscrowDispute(claimant, defendant types.Account, agreementID uint64, milestoneIndex uint32) (uint64, error)
	Verdict(id uint64) (arbitration.Verdict, error)
	CloseEscrowDispute(id uint64) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine applies milestone escrow transitions against the configured state.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	registry Registry
	court    Court
	policy   Policy
	nowFn    func() uint64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		policy:  DefaultPolicy(),
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry wires the professional registry used for oracle vetting and job
// bookkeeping.
func (e *Engine) SetRegistry(registry Registry) { e.registry = registry }

// SetCourt wires arbitration. Without a court, disputes settle only through
// the oracle or the timeout fallback.
func (e *Engine) SetCourt(court Court) { e.court = court }

// SetPolicy replaces the runtime parameters.
func (e *Engine) SetPolicy(policy Policy) { e.policy = policy }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
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
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("escrow: %s: %w", fmt.Sprintf(format, args...), coreerr.ErrInvalidArgument)
}

// CreateAgreement funds a new agreement from the caller's balance. value must
// equal the sum of the milestone amounts.
func (e *Engine) CreateAgreement(caller types.Account, params CreateParams, value *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if caller.IsZero() || params.Provider.IsZero() {
		return 0, invalid("client and provider must be set")
	}
	if caller == params.Provider {
		return 0, invalid("client and provider must differ")
	}
	count := len(params.Descriptions)
	if count == 0 {
		return 0, invalid("at least one milestone required")
	}
	if count > MaxMilestones {
		return 0, invalid("%d milestones exceeds limit %d", count, MaxMilestones)
	}
	if len(params.Amounts) != count || len(params.Deadlines) != count {
		return 0, fmt.Errorf("escrow: %d descriptions, %d amounts, %d deadlines: %w",
			count, len(params.Amounts), len(params.Deadlines), coreerr.ErrAmountMismatch)
	}
	if len(params.OracleVerification) != 0 && len(params.OracleVerification) != count {
		return 0, fmt.Errorf("escrow: %d oracle flags for %d milestones: %w",
			len(params.OracleVerification), count, coreerr.ErrAmountMismatch)
	}
	if err := types.ValidateBalance(value); err != nil {
		return 0, invalid("value: %v", err)
	}
	total := big.NewInt(0)
	for i, amount := range params.Amounts {
		if amount == nil || amount.Sign() <= 0 {
			return 0, invalid("milestone %d amount must be positive", i)
		}
		next, err := types.AddBalance(total, amount)
		if err != nil {
			return 0, invalid("milestone %d amount: %v", i, err)
		}
		total = next
	}
	deposit := types.CloneBalance(value)
	if total.Cmp(deposit) != 0 {
		return 0, fmt.Errorf("escrow: milestones sum to %s but %s attached: %w", total, deposit, coreerr.ErrAmountMismatch)
	}
	now := e.now()
	if params.DisputeTimeout <= now {
		return 0, invalid("dispute timeout %d not after %d", params.DisputeTimeout, now)
	}
	oracle, hasOracle := params.Oracle.Get()
	if hasOracle {
		if oracle.IsZero() || oracle == caller || oracle == params.Provider {
			return 0, invalid("oracle must be a third party")
		}
		if e.policy.RequireVettedOracle {
			if err := e.requireVetted(oracle); err != nil {
				return 0, err
			}
		}
	}
	for i, verified := range params.OracleVerification {
		if verified && !hasOracle {
			return 0, invalid("milestone %d requires an oracle", i)
		}
	}

	if err := e.state.Transfer(caller, VaultAccount, deposit); err != nil {
		return 0, err
	}
	id, err := e.state.EscrowNextAgreementID()
	if err != nil {
		return 0, err
	}
	agreement := &Agreement{
		ID:              id,
		Client:          caller,
		Provider:        params.Provider,
		TotalAmount:     total,
		DepositedAmount: deposit,
		ReleasedAmount:  big.NewInt(0),
		RefundedAmount:  big.NewInt(0),
		CreatedAt:       now,
		DisputeTimeout:  params.DisputeTimeout,
		Oracle:          params.Oracle,
		IsActive:        true,
		MilestoneCount:  uint32(count),
	}
	for i := 0; i < count; i++ {
		milestone := &Milestone{
			Description: strings.TrimSpace(params.Descriptions[i]),
			Amount:      new(big.Int).Set(params.Amounts[i]),
			Status:      MilestonePending,
			Deadline:    params.Deadlines[i],
		}
		if len(params.OracleVerification) > 0 {
			milestone.OracleVerification = params.OracleVerification[i]
		}
		if err := e.state.EscrowPutMilestone(id, uint32(i), milestone); err != nil {
			return 0, err
		}
	}
	if err := e.state.EscrowPutAgreement(agreement); err != nil {
		return 0, err
	}
	e.emit(NewAgreementCreatedEvent(agreement))
	return id, nil
}

func (e *Engine) requireVetted(oracle types.Account) error {
	if e.registry == nil {
		return fmt.Errorf("escrow: registry not configured for oracle vetting: %w", coreerr.ErrNotAuthorized)
	}
	ok, err := e.registry.IsActiveProfessional(oracle)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("escrow: oracle %s is not an active professional: %w", oracle, coreerr.ErrNotAuthorized)
	}
	return nil
}

func (e *Engine) load(id uint64, index uint32) (*Agreement, *Milestone, error) {
	agreement, ok, err := e.state.EscrowGetAgreement(id)
	if err != nil {
		return nil, nil, err
	}
	if !ok || agreement == nil {
		return nil, nil, fmt.Errorf("escrow: agreement %d: %w", id, coreerr.ErrNotFound)
	}
	if index >= agreement.MilestoneCount {
		return nil, nil, fmt.Errorf("escrow: agreement %d milestone %d: %w", id, index, coreerr.ErrNotFound)
	}
	milestone, ok, err := e.state.EscrowGetMilestone(id, index)
	if err != nil {
		return nil, nil, err
	}
	if !ok || milestone == nil {
		return nil, nil, fmt.Errorf("escrow: agreement %d milestone %d: %w", id, index, coreerr.ErrNotFound)
	}
	return agreement, milestone, nil
}

func wrongStatus(id uint64, index uint32, m *Milestone) error {
	return fmt.Errorf("escrow: agreement %d milestone %d is %s: %w", id, index, m.Status, coreerr.ErrInvalidState)
}

func notAuthorized(action string) error {
	return fmt.Errorf("escrow: caller may not %s: %w", action, coreerr.ErrNotAuthorized)
}

// CompleteMilestone marks pending work as delivered.
func (e *Engine) CompleteMilestone(caller types.Account, id uint64, index uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	agreement, milestone, err := e.load(id, index)
	if err != nil {
		return err
	}
	if caller != agreement.Provider {
		return notAuthorized("complete milestone")
	}
	if milestone.Status != MilestonePending {
		return wrongStatus(id, index, milestone)
	}
	milestone.Status = MilestoneCompleted
	if err := e.state.EscrowPutMilestone(id, index, milestone); err != nil {
		return err
	}
	e.emit(NewMilestoneEvent(EventTypeMilestoneCompleted, agreement, index, milestone))
	return nil
}

// ApproveAndRelease pays a completed milestone to the provider. The client or
// the designated oracle may approve.
func (e *Engine) ApproveAndRelease(caller types.Account, id uint64, index uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	agreement, milestone, err := e.load(id, index)
	if err != nil {
		return err
	}
	if caller != agreement.Client && !agreement.IsOracle(caller) {
		return notAuthorized("approve milestone")
	}
	if milestone.Status != MilestoneCompleted {
		return wrongStatus(id, index, milestone)
	}
	return e.settle(agreement, index, milestone, true, MilestoneResolved, EventTypeMilestoneReleased)
}

// RaiseDispute freezes a pending or completed milestone. When a court is wired
// a correlated arbitration dispute is opened with the raiser as claimant.
func (e *Engine) RaiseDispute(caller types.Account, id uint64, index uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	agreement, milestone, err := e.load(id, index)
	if err != nil {
		return err
	}
	var counterparty types.Account
	switch caller {
	case agreement.Client:
		counterparty = agreement.Provider
	case agreement.Provider:
		counterparty = agreement.Client
	default:
		return notAuthorized("raise dispute")
	}
	if milestone.Status != MilestonePending && milestone.Status != MilestoneCompleted {
		return wrongStatus(id, index, milestone)
	}
	if now := e.now(); now >= agreement.DisputeTimeout {
		return fmt.Errorf("escrow: dispute window closed at %d: %w", agreement.DisputeTimeout, coreerr.ErrInvalidState)
	}
	milestone.Status = MilestoneDisputed
	milestone.DisputedBy = types.Some(caller)
	if e.court != nil {
		disputeID, err := e.court.OpenEscrowDispute(caller, counterparty, id, index)
		if err != nil {
			return err
		}
		milestone.DisputeID = types.Some(disputeID)
	}
	if err := e.state.EscrowPutMilestone(id, index, milestone); err != nil {
		return err
	}
	e.emit(NewMilestoneEvent(EventTypeMilestoneDisputed, agreement, index, milestone))
	return nil
}

// ResolveDispute settles a disputed milestone. The oracle may resolve at any
// time; the parties may resolve once the dispute timeout has elapsed. The
// correlated arbitration dispute, if any, is closed.
func (e *Engine) ResolveDispute(caller types.Account, id uint64, index uint32, releaseToProvider bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	agreement, milestone, err := e.load(id, index)
	if err != nil {
		return err
	}
	switch {
	case agreement.IsOracle(caller):
	case caller == agreement.Client || caller == agreement.Provider:
		if e.now() < agreement.DisputeTimeout {
			return fmt.Errorf("escrow: parties may resolve only after %d: %w", agreement.DisputeTimeout, coreerr.ErrNotAuthorized)
		}
	default:
		return notAuthorized("resolve dispute")
	}
	if milestone.Status != MilestoneDisputed {
		return wrongStatus(id, index, milestone)
	}
	if disputeID, ok := milestone.DisputeID.Get(); ok && e.court != nil {
		if err := e.court.CloseEscrowDispute(disputeID); err != nil {
			return err
		}
	}
	return e.settle(agreement, index, milestone, releaseToProvider, MilestoneResolved, EventTypeDisputeResolved)
}

// SettleFromArbitration applies the final verdict of the correlated dispute.
// Anyone may trigger it.
func (e *Engine) SettleFromArbitration(id uint64, index uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	agreement, milestone, err := e.load(id, index)
	if err != nil {
		return err
	}
	if milestone.Status != MilestoneDisputed {
		return wrongStatus(id, index, milestone)
	}
	disputeID, ok := milestone.DisputeID.Get()
	if !ok || e.court == nil {
		return fmt.Errorf("escrow: milestone %d has no arbitration dispute: %w", index, coreerr.ErrInvalidState)
	}
	verdict, err := e.court.Verdict(disputeID)
	if err != nil {
		return err
	}
	if !verdict.Final {
		return fmt.Errorf("escrow: dispute %d not final: %w", disputeID, coreerr.ErrInvalidState)
	}
	toProvider := verdict.Winner == agreement.Provider
	return e.settle(agreement, index, milestone, toProvider, MilestoneResolved, EventTypeDisputeResolved)
}

// CancelMilestone refunds a milestone to the client. The client may cancel
// pending work once its deadline has passed; the provider may withdraw from a
// pending or completed milestone at any time.
func (e *Engine) CancelMilestone(caller types.Account, id uint64, index uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	agreement, milestone, err := e.load(id, index)
	if err != nil {
		return err
	}
	switch caller {
	case agreement.Provider:
		if milestone.Status != MilestonePending && milestone.Status != MilestoneCompleted {
			return wrongStatus(id, index, milestone)
		}
	case agreement.Client:
		if milestone.Status != MilestonePending {
			return wrongStatus(id, index, milestone)
		}
		if e.now() < milestone.Deadline {
			return fmt.Errorf("escrow: milestone %d deadline %d not reached: %w", index, milestone.Deadline, coreerr.ErrInvalidState)
		}
	default:
		return notAuthorized("cancel milestone")
	}
	return e.settle(agreement, index, milestone, false, MilestoneCancelled, EventTypeMilestoneCancelled)
}

// ClaimAfterTimeout pays a completed milestone to the provider when the client
// has not acted before the dispute timeout.
func (e *Engine) ClaimAfterTimeout(caller types.Account, id uint64, index uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	agreement, milestone, err := e.load(id, index)
	if err != nil {
		return err
	}
	if caller != agreement.Provider {
		return notAuthorized("claim milestone")
	}
	if milestone.Status != MilestoneCompleted {
		return wrongStatus(id, index, milestone)
	}
	if e.now() < agreement.DisputeTimeout {
		return fmt.Errorf("escrow: claim opens at %d: %w", agreement.DisputeTimeout, coreerr.ErrInvalidState)
	}
	return e.settle(agreement, index, milestone, true, MilestoneResolved, EventTypeMilestoneClaimed)
}

// settle pays the milestone amount out of the vault exactly once and moves the
// milestone into a terminal status.
func (e *Engine) settle(agreement *Agreement, index uint32, milestone *Milestone, toProvider bool, status MilestoneStatus, eventType string) error {
	if milestone.Status.Terminal() {
		return wrongStatus(agreement.ID, index, milestone)
	}
	amount := types.CloneBalance(milestone.Amount)
	recipient := agreement.Client
	if toProvider {
		recipient = agreement.Provider
	}
	if err := e.state.Transfer(VaultAccount, recipient, amount); err != nil {
		return err
	}
	var err error
	if toProvider {
		agreement.ReleasedAmount, err = types.AddBalance(agreement.ReleasedAmount, amount)
	} else {
		agreement.RefundedAmount, err = types.AddBalance(agreement.RefundedAmount, amount)
	}
	if err != nil {
		return err
	}
	milestone.Status = status
	milestone.Recipient = types.Some(recipient)
	milestone.SettledAt = e.now()
	if err := e.state.EscrowPutMilestone(agreement.ID, index, milestone); err != nil {
		return err
	}
	open, err := e.hasOpenMilestones(agreement)
	if err != nil {
		return err
	}
	agreement.IsActive = open
	if err := e.state.EscrowPutAgreement(agreement); err != nil {
		return err
	}
	if status == MilestoneResolved && e.registry != nil {
		if err := e.registry.RecordJob(agreement.Provider, toProvider); err != nil {
			return err
		}
	}
	e.emit(NewMilestoneEvent(eventType, agreement, index, milestone))
	if !agreement.IsActive {
		e.emit(NewAgreementClosedEvent(agreement))
	}
	return nil
}

func (e *Engine) hasOpenMilestones(agreement *Agreement) (bool, error) {
	for i := uint32(0); i < agreement.MilestoneCount; i++ {
		m, ok, err := e.state.EscrowGetMilestone(agreement.ID, i)
		if err != nil {
			return false, err
		}
		if ok && m != nil && !m.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

// Agreement returns the stored agreement.
func (e *Engine) Agreement(id uint64) (*Agreement, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.state.EscrowGetAgreement(id)
}

// Milestone returns a single milestone.
func (e *Engine) Milestone(id uint64, index uint32) (*Milestone, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	_, milestone, err := e.load(id, index)
	if errors.Is(err, coreerr.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return milestone, true, nil
}

// MilestoneCount returns the number of milestones of an agreement.
func (e *Engine) MilestoneCount(id uint64) (uint32, bool, error) {
	agreement, ok, err := e.Agreement(id)
	if err != nil || !ok {
		return 0, false, err
	}
	return agreement.MilestoneCount, true, nil
}

// Milestones returns every milestone of an agreement in index order.
func (e *Engine) Milestones(id uint64) ([]*Milestone, bool, error) {
	agreement, ok, err := e.Agreement(id)
	if err != nil || !ok {
		return nil, false, err
	}
	out := make([]*Milestone, 0, agreement.MilestoneCount)
	for i := uint32(0); i < agreement.MilestoneCount; i++ {
		m, ok, err := e.state.EscrowGetMilestone(id, i)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("escrow: agreement %d missing milestone %d", id, i)
		}
		out = append(out, m)
	}
	return out, true, nil
}
