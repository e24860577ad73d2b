package arbitration

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

var errNilState = errors.New("arbitration engine: state not configured")

// VaultAccount holds every arbitrator stake.
var VaultAccount = types.AccountFromLabel("accord/arbitration/vault")

type engineState interface {
	ArbitrationNextDisputeID() (uint64, error)
	ArbitrationGetDispute(id uint64) (*Dispute, bool, error)
	ArbitrationPutDispute(d *Dispute) error
	ArbitrationGetArbitrator(account types.Account) (*Arbitrator, bool, error)
	ArbitrationPutArbitrator(a *Arbitrator) error
	ArbitrationGetVote(id uint64, round uint32, arbitrator types.Account) (*Vote, bool, error)
	ArbitrationPutVote(v *Vote) error
	ArbitrationListVoters(id uint64, round uint32) ([]types.Account, error)
	Transfer(from, to types.Account, amount *big.Int) error
}

// Registry is the slice of the professional registry arbitration relies on.
type Registry interface {
	IsActiveProfessional(account types.Account) (bool, error)
	RecordJob(account types.Account, successful bool) error
}

// Engine applies dispute and arbitrator operations against the configured
// state.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	registry Registry
	policy   Policy
	nowFn    func() uint64
}

// NewEngine creates an arbitration engine with the default policy.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		policy:  DefaultPolicy(),
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry wires the professional registry. Nil disables profile checks and
// job bookkeeping.
func (e *Engine) SetRegistry(registry Registry) { e.registry = registry }

// SetPolicy replaces the runtime parameters.
func (e *Engine) SetPolicy(policy Policy) { e.policy = policy }

// Policy returns the active parameters.
func (e *Engine) Policy() Policy { return e.policy }

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
	e.emitter.Emit(arbitrationEvent{evt: event})
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

// MinArbitratorStake returns the stake floor for arbitrators.
func (e *Engine) MinArbitratorStake() *big.Int {
	return types.CloneBalance(e.policy.MinArbitratorStake)
}

// RegisterArbitrator locks stake and enrols caller as an active arbitrator.
func (e *Engine) RegisterArbitrator(caller types.Account, stake *big.Int) (*Arbitrator, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, fmt.Errorf("arbitration: caller: %w", coreerr.ErrInvalidArgument)
	}
	if err := types.ValidateBalance(stake); err != nil {
		return nil, fmt.Errorf("arbitration: stake: %w", coreerr.ErrInvalidArgument)
	}
	_, exists, err := e.state.ArbitrationGetArbitrator(caller)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("arbitration: arbitrator %s: %w", caller, coreerr.ErrAlreadyRegistered)
	}
	amount := types.CloneBalance(stake)
	minimum := e.MinArbitratorStake()
	if amount.Cmp(minimum) < 0 {
		return nil, fmt.Errorf("arbitration: stake %s below minimum %s: %w", amount, minimum, coreerr.ErrInsufficientStake)
	}
	if e.policy.RequireProfessionalProfile {
		if e.registry == nil {
			return nil, fmt.Errorf("arbitration: registry not configured: %w", coreerr.ErrNotAuthorized)
		}
		ok, err := e.registry.IsActiveProfessional(caller)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("arbitration: %s has no active profile: %w", caller, coreerr.ErrNotAuthorized)
		}
	}
	if err := e.state.Transfer(caller, VaultAccount, amount); err != nil {
		return nil, err
	}
	arb := &Arbitrator{
		Account:      caller,
		Stake:        amount,
		Reputation:   e.policy.InitialReputation,
		IsActive:     true,
		RegisteredAt: e.now(),
	}
	if err := e.state.ArbitrationPutArbitrator(arb); err != nil {
		return nil, err
	}
	e.emit(NewArbitratorEvent(EventTypeArbitratorRegistered, arb))
	return arb.Clone(), nil
}

func (e *Engine) activeArbitrator(account types.Account) (*Arbitrator, error) {
	arb, ok, err := e.state.ArbitrationGetArbitrator(account)
	if err != nil {
		return nil, err
	}
	if !ok || arb == nil {
		return nil, fmt.Errorf("arbitration: arbitrator %s: %w", account, coreerr.ErrNotFound)
	}
	if !arb.IsActive {
		return nil, fmt.Errorf("arbitration: arbitrator %s inactive: %w", account, coreerr.ErrInvalidState)
	}
	return arb, nil
}

// IncreaseArbitratorStake adds amount to the caller's stake. Votes already
// cast keep their original weight.
func (e *Engine) IncreaseArbitratorStake(caller types.Account, amount *big.Int) (*Arbitrator, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("arbitration: amount must be positive: %w", coreerr.ErrInvalidArgument)
	}
	arb, err := e.activeArbitrator(caller)
	if err != nil {
		return nil, err
	}
	next, err := types.AddBalance(arb.Stake, amount)
	if err != nil {
		return nil, fmt.Errorf("arbitration: stake: %v: %w", err, coreerr.ErrInvalidArgument)
	}
	if err := e.state.Transfer(caller, VaultAccount, amount); err != nil {
		return nil, err
	}
	arb.Stake = next
	if err := e.state.ArbitrationPutArbitrator(arb); err != nil {
		return nil, err
	}
	e.emit(NewArbitratorEvent(EventTypeArbitratorStakeIncreased, arb))
	return arb.Clone(), nil
}

// WithdrawArbitratorStake returns the stake and deactivates the caller. It is
// refused while any of the caller's votes belong to an unfinalized round.
func (e *Engine) WithdrawArbitratorStake(caller types.Account) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	arb, err := e.activeArbitrator(caller)
	if err != nil {
		return nil, err
	}
	if arb.PendingVotes > 0 {
		return nil, fmt.Errorf("arbitration: %d votes pending finalization: %w", arb.PendingVotes, coreerr.ErrInvalidState)
	}
	amount := types.CloneBalance(arb.Stake)
	if err := e.state.Transfer(VaultAccount, caller, amount); err != nil {
		return nil, err
	}
	arb.Stake = big.NewInt(0)
	arb.IsActive = false
	if err := e.state.ArbitrationPutArbitrator(arb); err != nil {
		return nil, err
	}
	e.emit(NewArbitratorEvent(EventTypeArbitratorWithdrawn, arb))
	return amount, nil
}

// CreateDispute opens a dispute filed by caller against defendant.
func (e *Engine) CreateDispute(caller, defendant types.Account, description, evidenceURI string) (uint64, error) {
	return e.openDispute(caller, defendant, description, evidenceURI, types.None[Origin]())
}

// OpenEscrowDispute opens a dispute on behalf of an escrow milestone.
func (e *Engine) OpenEscrowDispute(claimant, defendant types.Account, agreementID uint64, milestoneIndex uint32) (uint64, error) {
	description := fmt.Sprintf("escrow agreement %d milestone %d", agreementID, milestoneIndex)
	origin := types.Some(Origin{AgreementID: agreementID, MilestoneIndex: milestoneIndex})
	return e.openDispute(claimant, defendant, description, "", origin)
}

func (e *Engine) openDispute(claimant, defendant types.Account, description, evidenceURI string, origin types.Option[Origin]) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if claimant.IsZero() || defendant.IsZero() {
		return 0, fmt.Errorf("arbitration: parties must be set: %w", coreerr.ErrInvalidArgument)
	}
	if claimant == defendant {
		return 0, fmt.Errorf("arbitration: claimant and defendant must differ: %w", coreerr.ErrInvalidArgument)
	}
	id, err := e.state.ArbitrationNextDisputeID()
	if err != nil {
		return 0, err
	}
	uri := strings.TrimSpace(evidenceURI)
	dispute := &Dispute{
		ID:                id,
		Claimant:          claimant,
		Defendant:         defendant,
		Description:       strings.TrimSpace(description),
		EvidenceURI:       uri,
		Status:            DisputeOpen,
		CreatedAt:         e.now(),
		VotesForClaimant:  big.NewInt(0),
		VotesForDefendant: big.NewInt(0),
		Origin:            origin,
	}
	if uri != "" {
		dispute.EvidenceDigest = EvidenceDigest(uri)
	}
	if err := e.state.ArbitrationPutDispute(dispute); err != nil {
		return 0, err
	}
	e.emit(NewDisputeEvent(EventTypeDisputeCreated, dispute))
	return id, nil
}

func (e *Engine) loadDispute(id uint64) (*Dispute, error) {
	dispute, ok, err := e.state.ArbitrationGetDispute(id)
	if err != nil {
		return nil, err
	}
	if !ok || dispute == nil {
		return nil, fmt.Errorf("arbitration: dispute %d: %w", id, coreerr.ErrNotFound)
	}
	return dispute, nil
}

// StartVoting moves an open dispute into its voting window.
func (e *Engine) StartVoting(caller types.Account, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	dispute, err := e.loadDispute(id)
	if err != nil {
		return err
	}
	if !dispute.IsParty(caller) {
		return fmt.Errorf("arbitration: only parties may start voting: %w", coreerr.ErrNotAuthorized)
	}
	if dispute.Status != DisputeOpen {
		return fmt.Errorf("arbitration: dispute %d is %s: %w", id, dispute.Status, coreerr.ErrInvalidState)
	}
	dispute.Status = DisputeVoting
	dispute.VotingEndsAt = e.now() + e.policy.VotingPeriodSeconds
	if err := e.state.ArbitrationPutDispute(dispute); err != nil {
		return err
	}
	e.emit(NewDisputeEvent(EventTypeVotingStarted, dispute))
	return nil
}

// CastVote records a stake-weighted ballot for the current round.
func (e *Engine) CastVote(caller types.Account, id uint64, choice Side) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !choice.Valid() {
		return fmt.Errorf("arbitration: choice %d: %w", uint8(choice), coreerr.ErrInvalidArgument)
	}
	dispute, err := e.loadDispute(id)
	if err != nil {
		return err
	}
	arb, ok, err := e.state.ArbitrationGetArbitrator(caller)
	if err != nil {
		return err
	}
	if !ok || arb == nil || !arb.IsActive {
		return fmt.Errorf("arbitration: %s is not an active arbitrator: %w", caller, coreerr.ErrNotAuthorized)
	}
	if dispute.IsParty(caller) {
		return fmt.Errorf("arbitration: parties cannot vote: %w", coreerr.ErrNotAuthorized)
	}
	if dispute.Status != DisputeVoting && dispute.Status != DisputeAppealed {
		return fmt.Errorf("arbitration: dispute %d is %s: %w", id, dispute.Status, coreerr.ErrInvalidState)
	}
	now := e.now()
	if now >= dispute.VotingEndsAt {
		return fmt.Errorf("arbitration: voting on dispute %d ended at %d: %w", id, dispute.VotingEndsAt, coreerr.ErrVotingClosed)
	}
	_, voted, err := e.state.ArbitrationGetVote(id, dispute.Round, caller)
	if err != nil {
		return err
	}
	if voted {
		return fmt.Errorf("arbitration: %s on dispute %d round %d: %w", caller, id, dispute.Round, coreerr.ErrAlreadyVoted)
	}
	weight := types.CloneBalance(arb.Stake)
	switch choice {
	case SideClaimant:
		dispute.VotesForClaimant, err = types.AddBalance(dispute.VotesForClaimant, weight)
	default:
		dispute.VotesForDefendant, err = types.AddBalance(dispute.VotesForDefendant, weight)
	}
	if err != nil {
		return err
	}
	vote := &Vote{
		DisputeID:  id,
		Round:      dispute.Round,
		Arbitrator: caller,
		Choice:     choice,
		Weight:     weight,
		CastAt:     now,
	}
	if err := e.state.ArbitrationPutVote(vote); err != nil {
		return err
	}
	arb.PendingVotes++
	if err := e.state.ArbitrationPutArbitrator(arb); err != nil {
		return err
	}
	if err := e.state.ArbitrationPutDispute(dispute); err != nil {
		return err
	}
	e.emit(NewVoteEvent(vote))
	return nil
}

// FinalizeDispute closes the current round once its window has elapsed. The
// claimant wins only with strictly more weight; ties go to the defendant.
func (e *Engine) FinalizeDispute(id uint64) (Side, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	dispute, err := e.loadDispute(id)
	if err != nil {
		return 0, err
	}
	if dispute.Status != DisputeVoting && dispute.Status != DisputeAppealed {
		return 0, fmt.Errorf("arbitration: dispute %d is %s: %w", id, dispute.Status, coreerr.ErrInvalidState)
	}
	now := e.now()
	if now < dispute.VotingEndsAt {
		return 0, fmt.Errorf("arbitration: voting on dispute %d ends at %d: %w", id, dispute.VotingEndsAt, coreerr.ErrInvalidState)
	}
	winner := SideDefendant
	if types.CloneBalance(dispute.VotesForClaimant).Cmp(types.CloneBalance(dispute.VotesForDefendant)) > 0 {
		winner = SideClaimant
	}
	voters, err := e.state.ArbitrationListVoters(id, dispute.Round)
	if err != nil {
		return 0, err
	}
	for _, voter := range voters {
		if err := e.settleVoter(dispute, voter, winner); err != nil {
			return 0, err
		}
	}
	appealed := dispute.Status == DisputeAppealed
	dispute.Status = DisputeResolved
	dispute.Resolution = types.Some(winner)
	dispute.ResolvedAt = now
	if appealed {
		dispute.CanAppeal = false
		dispute.AppealDeadline = 0
	} else {
		dispute.CanAppeal = true
		dispute.AppealDeadline = now + e.policy.AppealWindowSeconds
	}
	if err := e.state.ArbitrationPutDispute(dispute); err != nil {
		return 0, err
	}
	e.emit(NewDisputeEvent(EventTypeDisputeResolved, dispute))
	return winner, nil
}

func (e *Engine) settleVoter(dispute *Dispute, voter types.Account, winner Side) error {
	vote, ok, err := e.state.ArbitrationGetVote(dispute.ID, dispute.Round, voter)
	if err != nil {
		return err
	}
	if !ok || vote == nil {
		return nil
	}
	arb, ok, err := e.state.ArbitrationGetArbitrator(voter)
	if err != nil {
		return err
	}
	if !ok || arb == nil {
		return nil
	}
	arb.DisputesParticipated++
	if arb.PendingVotes > 0 {
		arb.PendingVotes--
	}
	majority := vote.Choice == winner
	if majority {
		arb.DisputesResolved++
		arb.Reputation += e.policy.ReputationReward
	}
	if err := e.state.ArbitrationPutArbitrator(arb); err != nil {
		return err
	}
	if majority && e.registry != nil {
		if err := e.registry.RecordJob(voter, true); err != nil {
			return err
		}
	}
	return nil
}

// AppealDispute reopens a resolved dispute for a second and final round. Only
// the losing party may appeal, once, within the appeal window.
func (e *Engine) AppealDispute(caller types.Account, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	dispute, err := e.loadDispute(id)
	if err != nil {
		return err
	}
	if dispute.Status != DisputeResolved || !dispute.CanAppeal {
		return fmt.Errorf("arbitration: dispute %d cannot be appealed: %w", id, coreerr.ErrInvalidState)
	}
	now := e.now()
	if now >= dispute.AppealDeadline {
		return fmt.Errorf("arbitration: appeal window closed at %d: %w", dispute.AppealDeadline, coreerr.ErrInvalidState)
	}
	resolution, _ := dispute.Resolution.Get()
	loser := dispute.Claimant
	if resolution == SideClaimant {
		loser = dispute.Defendant
	}
	if caller != loser {
		return fmt.Errorf("arbitration: only the losing party may appeal: %w", coreerr.ErrNotAuthorized)
	}
	dispute.Status = DisputeAppealed
	dispute.CanAppeal = false
	dispute.Round++
	dispute.VotesForClaimant = big.NewInt(0)
	dispute.VotesForDefendant = big.NewInt(0)
	dispute.VotingEndsAt = now + e.policy.AppealVotingPeriodSeconds
	if err := e.state.ArbitrationPutDispute(dispute); err != nil {
		return err
	}
	e.emit(NewDisputeEvent(EventTypeDisputeAppealed, dispute))
	return nil
}

// CancelDispute withdraws an open dispute before voting starts.
func (e *Engine) CancelDispute(caller types.Account, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	dispute, err := e.loadDispute(id)
	if err != nil {
		return err
	}
	if caller != dispute.Claimant {
		return fmt.Errorf("arbitration: only the claimant may cancel: %w", coreerr.ErrNotAuthorized)
	}
	if dispute.Status != DisputeOpen {
		return fmt.Errorf("arbitration: dispute %d is %s: %w", id, dispute.Status, coreerr.ErrInvalidState)
	}
	if dispute.Origin.IsSome() {
		return fmt.Errorf("arbitration: escrow disputes settle through escrow: %w", coreerr.ErrInvalidState)
	}
	dispute.Status = DisputeCancelled
	if err := e.state.ArbitrationPutDispute(dispute); err != nil {
		return err
	}
	e.emit(NewDisputeEvent(EventTypeDisputeCancelled, dispute))
	return nil
}

// CloseEscrowDispute retires an escrow dispute whose milestone was settled
// outside arbitration. An unresolved dispute is cancelled and the ballots of its
// open round are released without rewards; a resolved one can no longer be
// appealed.
func (e *Engine) CloseEscrowDispute(id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	dispute, err := e.loadDispute(id)
	if err != nil {
		return err
	}
	if !dispute.Origin.IsSome() {
		return fmt.Errorf("arbitration: dispute %d did not originate in escrow: %w", id, coreerr.ErrInvalidState)
	}
	switch dispute.Status {
	case DisputeCancelled:
		return nil
	case DisputeResolved:
		if !dispute.CanAppeal {
			return nil
		}
		dispute.CanAppeal = false
		dispute.AppealDeadline = 0
		return e.state.ArbitrationPutDispute(dispute)
	case DisputeVoting, DisputeAppealed:
		if err := e.releaseVotes(dispute); err != nil {
			return err
		}
	}
	dispute.Status = DisputeCancelled
	dispute.Resolution = types.None[Side]()
	dispute.CanAppeal = false
	dispute.VotingEndsAt = 0
	if err := e.state.ArbitrationPutDispute(dispute); err != nil {
		return err
	}
	e.emit(NewDisputeEvent(EventTypeDisputeCancelled, dispute))
	return nil
}

// releaseVotes clears the pending count the current round holds on each voter.
func (e *Engine) releaseVotes(dispute *Dispute) error {
	voters, err := e.state.ArbitrationListVoters(dispute.ID, dispute.Round)
	if err != nil {
		return err
	}
	for _, voter := range voters {
		arb, ok, err := e.state.ArbitrationGetArbitrator(voter)
		if err != nil {
			return err
		}
		if !ok || arb == nil || arb.PendingVotes == 0 {
			continue
		}
		arb.PendingVotes--
		if err := e.state.ArbitrationPutArbitrator(arb); err != nil {
			return err
		}
	}
	return nil
}

// Dispute returns the stored dispute.
func (e *Engine) Dispute(id uint64) (*Dispute, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.state.ArbitrationGetDispute(id)
}

// Arbitrator returns the stored arbitrator record.
func (e *Engine) Arbitrator(account types.Account) (*Arbitrator, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.state.ArbitrationGetArbitrator(account)
}

// Vote returns the ballot cast by arbitrator in round, or in the current round
// when round is absent. Ballots are unique per dispute, round and arbitrator;
// an appeal round takes a fresh ballot from every arbitrator, and earlier
// rounds stay readable.
func (e *Engine) Vote(id uint64, arbitrator types.Account, round types.Option[uint32]) (*Vote, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	dispute, ok, err := e.state.ArbitrationGetDispute(id)
	if err != nil || !ok {
		return nil, false, err
	}
	r := round.OrElse(dispute.Round)
	if r > dispute.Round {
		return nil, false, nil
	}
	return e.state.ArbitrationGetVote(id, r, arbitrator)
}

// IsActiveArbitrator reports whether account may vote.
func (e *Engine) IsActiveArbitrator(account types.Account) (bool, error) {
	arb, ok, err := e.Arbitrator(account)
	if err != nil || !ok {
		return false, err
	}
	return arb.IsActive, nil
}

// VotingResults returns the tallies of the current round.
func (e *Engine) VotingResults(id uint64) (*VotingResults, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	dispute, err := e.loadDispute(id)
	if err != nil {
		return nil, err
	}
	return &VotingResults{
		ForClaimant:  types.CloneBalance(dispute.VotesForClaimant),
		ForDefendant: types.CloneBalance(dispute.VotesForDefendant),
		Round:        dispute.Round,
		Ended:        votingEnded(dispute, e.now()),
	}, nil
}

// HasVotingEnded reports whether the current voting window has elapsed.
func (e *Engine) HasVotingEnded(id uint64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	dispute, err := e.loadDispute(id)
	if err != nil {
		return false, err
	}
	return votingEnded(dispute, e.now()), nil
}

func votingEnded(d *Dispute, now uint64) bool {
	switch d.Status {
	case DisputeVoting, DisputeAppealed:
		return now >= d.VotingEndsAt
	case DisputeResolved:
		return true
	default:
		return false
	}
}

// Verdict reports the winner of a dispute and whether the outcome can no
// longer change. A resolved first-round outcome becomes final once the appeal
// window lapses.
func (e *Engine) Verdict(id uint64) (Verdict, error) {
	if err := e.ready(); err != nil {
		return Verdict{}, err
	}
	dispute, err := e.loadDispute(id)
	if err != nil {
		return Verdict{}, err
	}
	side, ok := dispute.Resolution.Get()
	if !ok || dispute.Status != DisputeResolved {
		return Verdict{}, nil
	}
	final := !dispute.CanAppeal || e.now() >= dispute.AppealDeadline
	return Verdict{Winner: dispute.Party(side), Side: side, Final: final}, nil
}
