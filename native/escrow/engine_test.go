package escrow

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerr "accordchain/core/errors"
	"accordchain/core/events"
	"accordchain/core/types"
	"accordchain/native/arbitration"
)

type mockState struct {
	nextID     uint64
	agreements map[uint64]*Agreement
	milestones map[string]*Milestone
	balances   map[types.Account]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		agreements: make(map[uint64]*Agreement),
		milestones: make(map[string]*Milestone),
		balances:   make(map[types.Account]*big.Int),
	}
}

func milestoneKey(id uint64, index uint32) string { return fmt.Sprintf("%d/%d", id, index) }

func (m *mockState) EscrowNextAgreementID() (uint64, error) {
	id := m.nextID
	m.nextID++
	return id, nil
}

func (m *mockState) EscrowGetAgreement(id uint64) (*Agreement, bool, error) {
	a, ok := m.agreements[id]
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (m *mockState) EscrowPutAgreement(a *Agreement) error {
	m.agreements[a.ID] = a.Clone()
	return nil
}

func (m *mockState) EscrowGetMilestone(id uint64, index uint32) (*Milestone, bool, error) {
	ms, ok := m.milestones[milestoneKey(id, index)]
	if !ok {
		return nil, false, nil
	}
	return ms.Clone(), true, nil
}

func (m *mockState) EscrowPutMilestone(id uint64, index uint32, ms *Milestone) error {
	m.milestones[milestoneKey(id, index)] = ms.Clone()
	return nil
}

func (m *mockState) balance(acc types.Account) *big.Int { return types.CloneBalance(m.balances[acc]) }

func (m *mockState) Transfer(from, to types.Account, amount *big.Int) error {
	next, err := types.SubBalance(m.balance(from), amount)
	if err != nil {
		return fmt.Errorf("mock: %w", coreerr.ErrInsufficientBalance)
	}
	m.balances[from] = next
	credited, err := types.AddBalance(m.balance(to), amount)
	if err != nil {
		return err
	}
	m.balances[to] = credited
	return nil
}

type mockRegistry struct {
	active map[types.Account]bool
	jobs   []bool
}

func (r *mockRegistry) IsActiveProfessional(account types.Account) (bool, error) {
	return r.active[account], nil
}

func (r *mockRegistry) RecordJob(_ types.Account, successful bool) error {
	r.jobs = append(r.jobs, successful)
	return nil
}

type mockCourt struct {
	opened   []arbitration.Origin
	closed   []uint64
	verdicts map[uint64]arbitration.Verdict
}

func (c *mockCourt) OpenEscrowDispute(_, _ types.Account, agreementID uint64, index uint32) (uint64, error) {
	c.opened = append(c.opened, arbitration.Origin{AgreementID: agreementID, MilestoneIndex: index})
	return uint64(len(c.opened) - 1), nil
}

func (c *mockCourt) Verdict(id uint64) (arbitration.Verdict, error) {
	return c.verdicts[id], nil
}

func (c *mockCourt) CloseEscrowDispute(id uint64) error {
	c.closed = append(c.closed, id)
	return nil
}

type capture struct{ seen []string }

func (c *capture) Emit(evt events.Event) { c.seen = append(c.seen, evt.EventType()) }

var (
	client   = types.AccountFromLabel("client")
	provider = types.AccountFromLabel("provider")
	oracle   = types.AccountFromLabel("oracle")
	stranger = types.AccountFromLabel("stranger")
)

const start = uint64(1_700_000_000)

type harness struct {
	engine   *Engine
	state    *mockState
	registry *mockRegistry
	court    *mockCourt
	events   *capture
	now      uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		state:    newMockState(),
		registry: &mockRegistry{active: map[types.Account]bool{}},
		court:    &mockCourt{verdicts: map[uint64]arbitration.Verdict{}},
		events:   &capture{},
		now:      start,
	}
	h.engine = NewEngine()
	h.engine.SetState(h.state)
	h.engine.SetRegistry(h.registry)
	h.engine.SetCourt(h.court)
	h.engine.SetEmitter(h.events)
	h.engine.SetNowFunc(func() uint64 { return h.now })
	h.state.balances[client] = big.NewInt(10_000)
	return h
}

func twoMilestones(withOracle bool) CreateParams {
	params := CreateParams{
		Provider:       provider,
		Descriptions:   []string{"design", "build"},
		Amounts:        []*big.Int{big.NewInt(1000), big.NewInt(2000)},
		Deadlines:      []uint64{start + 100, start + 200},
		DisputeTimeout: start + 1000,
	}
	if withOracle {
		params.Oracle = types.Some(oracle)
	}
	return params
}

func (h *harness) create(t *testing.T, params CreateParams) uint64 {
	t.Helper()
	total := big.NewInt(0)
	for _, a := range params.Amounts {
		total.Add(total, a)
	}
	id, err := h.engine.CreateAgreement(client, params, total)
	require.NoError(t, err)
	return id
}

// requireConserved checks the deposited amount equals the settled amounts
// plus whatever is still locked in open milestones.
func (h *harness) requireConserved(t *testing.T, id uint64) {
	t.Helper()
	agreement, ok, err := h.engine.Agreement(id)
	require.NoError(t, err)
	require.True(t, ok)
	milestones, _, err := h.engine.Milestones(id)
	require.NoError(t, err)
	locked := big.NewInt(0)
	for _, m := range milestones {
		if !m.Status.Terminal() {
			locked.Add(locked, m.Amount)
		}
	}
	sum := new(big.Int).Add(agreement.ReleasedAmount, agreement.RefundedAmount)
	sum.Add(sum, locked)
	require.Equal(t, 0, agreement.DepositedAmount.Cmp(sum))
	require.Equal(t, 0, agreement.DepositedAmount.Cmp(agreement.TotalAmount))
}

func TestCreateAgreementValidation(t *testing.T) {
	h := newHarness(t)

	params := twoMilestones(false)
	_, err := h.engine.CreateAgreement(client, params, big.NewInt(2999))
	require.ErrorIs(t, err, coreerr.ErrAmountMismatch)

	params.Deadlines = params.Deadlines[:1]
	_, err = h.engine.CreateAgreement(client, params, big.NewInt(3000))
	require.ErrorIs(t, err, coreerr.ErrAmountMismatch)

	params = twoMilestones(false)
	params.Amounts[0] = big.NewInt(0)
	_, err = h.engine.CreateAgreement(client, params, big.NewInt(2000))
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)

	params = twoMilestones(false)
	params.DisputeTimeout = start
	_, err = h.engine.CreateAgreement(client, params, big.NewInt(3000))
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)

	params = twoMilestones(false)
	params.Provider = client
	_, err = h.engine.CreateAgreement(client, params, big.NewInt(3000))
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)

	params = twoMilestones(false)
	params.Oracle = types.Some(provider)
	_, err = h.engine.CreateAgreement(client, params, big.NewInt(3000))
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)

	params = twoMilestones(false)
	params.OracleVerification = []bool{true, false}
	_, err = h.engine.CreateAgreement(client, params, big.NewInt(3000))
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)

	_, err = h.engine.CreateAgreement(client, CreateParams{Provider: provider, DisputeTimeout: start + 1}, big.NewInt(0))
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)

	h.state.balances[client] = big.NewInt(100)
	_, err = h.engine.CreateAgreement(client, twoMilestones(false), big.NewInt(3000))
	require.ErrorIs(t, err, coreerr.ErrInsufficientBalance)
	require.Empty(t, h.state.agreements)
}

func TestCreateAgreementAssignsMonotonicIDs(t *testing.T) {
	h := newHarness(t)
	first := h.create(t, twoMilestones(false))
	second := h.create(t, twoMilestones(true))
	require.Equal(t, uint64(0), first)
	require.Equal(t, uint64(1), second)
	require.Equal(t, 0, h.state.balance(VaultAccount).Cmp(big.NewInt(6000)))
	require.Equal(t, 0, h.state.balance(client).Cmp(big.NewInt(4000)))

	agreement, ok, err := h.engine.Agreement(second)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, agreement.IsActive)
	require.True(t, agreement.IsOracle(oracle))
	count, ok, err := h.engine.MilestoneCount(second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(2), count)
}

func TestHappyPathReleasesOnce(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, twoMilestones(false))

	require.ErrorIs(t, h.engine.CompleteMilestone(client, id, 0), coreerr.ErrNotAuthorized)
	require.ErrorIs(t, h.engine.ApproveAndRelease(client, id, 0), coreerr.ErrInvalidState)
	require.NoError(t, h.engine.CompleteMilestone(provider, id, 0))
	require.ErrorIs(t, h.engine.CompleteMilestone(provider, id, 0), coreerr.ErrInvalidState)
	require.ErrorIs(t, h.engine.ApproveAndRelease(provider, id, 0), coreerr.ErrNotAuthorized)
	require.NoError(t, h.engine.ApproveAndRelease(client, id, 0))
	require.ErrorIs(t, h.engine.ApproveAndRelease(client, id, 0), coreerr.ErrInvalidState)

	require.Equal(t, 0, h.state.balance(provider).Cmp(big.NewInt(1000)))
	h.requireConserved(t, id)

	milestone, ok, err := h.engine.Milestone(id, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MilestoneResolved, milestone.Status)
	recipient, ok := milestone.Recipient.Get()
	require.True(t, ok)
	require.Equal(t, provider, recipient)

	require.NoError(t, h.engine.CompleteMilestone(provider, id, 1))
	require.NoError(t, h.engine.ApproveAndRelease(client, id, 1))
	agreement, _, err := h.engine.Agreement(id)
	require.NoError(t, err)
	require.False(t, agreement.IsActive)
	require.Equal(t, 0, agreement.ReleasedAmount.Cmp(big.NewInt(3000)))
	require.Zero(t, h.state.balance(VaultAccount).Sign())
	require.Equal(t, []bool{true, true}, h.registry.jobs)
	require.Contains(t, h.events.seen, EventTypeAgreementClosed)

	_, ok, err = h.engine.Milestone(id, 5)
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, h.engine.CompleteMilestone(provider, 9, 0), coreerr.ErrNotFound)
}

func TestOracleVerifiedMilestone(t *testing.T) {
	h := newHarness(t)
	params := twoMilestones(true)
	params.OracleVerification = []bool{true, false}
	id := h.create(t, params)

	require.NoError(t, h.engine.CompleteMilestone(provider, id, 0))
	require.ErrorIs(t, h.engine.ApproveAndRelease(provider, id, 0), coreerr.ErrNotAuthorized)
	require.NoError(t, h.engine.ApproveAndRelease(client, id, 0))

	require.NoError(t, h.engine.CompleteMilestone(provider, id, 1))
	require.NoError(t, h.engine.ApproveAndRelease(oracle, id, 1))
	h.requireConserved(t, id)
}

func TestOracleApprovesPlainMilestone(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, twoMilestones(true))

	require.NoError(t, h.engine.CompleteMilestone(provider, id, 0))
	require.NoError(t, h.engine.ApproveAndRelease(oracle, id, 0))
	require.ErrorIs(t, h.engine.ApproveAndRelease(client, id, 0), coreerr.ErrInvalidState)

	milestone, ok, err := h.engine.Milestone(id, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MilestoneResolved, milestone.Status)
	h.requireConserved(t, id)
}

func TestVettedOraclePolicy(t *testing.T) {
	h := newHarness(t)
	h.engine.SetPolicy(Policy{RequireVettedOracle: true})
	_, err := h.engine.CreateAgreement(client, twoMilestones(true), big.NewInt(3000))
	require.ErrorIs(t, err, coreerr.ErrNotAuthorized)

	h.registry.active[oracle] = true
	h.create(t, twoMilestones(true))
	h.create(t, twoMilestones(false))
}

func TestOracleResolvesBeforeTimeout(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, twoMilestones(true))

	require.ErrorIs(t, h.engine.RaiseDispute(stranger, id, 0), coreerr.ErrNotAuthorized)
	require.NoError(t, h.engine.RaiseDispute(client, id, 0))
	require.ErrorIs(t, h.engine.RaiseDispute(provider, id, 0), coreerr.ErrInvalidState)
	require.Len(t, h.court.opened, 1)

	milestone, _, err := h.engine.Milestone(id, 0)
	require.NoError(t, err)
	require.Equal(t, MilestoneDisputed, milestone.Status)
	disputeID, ok := milestone.DisputeID.Get()
	require.True(t, ok)
	require.Equal(t, uint64(0), disputeID)

	require.ErrorIs(t, h.engine.ResolveDispute(client, id, 0, false), coreerr.ErrNotAuthorized)
	require.ErrorIs(t, h.engine.ApproveAndRelease(client, id, 0), coreerr.ErrInvalidState)
	require.NoError(t, h.engine.ResolveDispute(oracle, id, 0, false))
	require.ErrorIs(t, h.engine.ResolveDispute(oracle, id, 0, true), coreerr.ErrInvalidState)
	require.Equal(t, []uint64{0}, h.court.closed)

	require.Equal(t, 0, h.state.balance(client).Cmp(big.NewInt(8000)))
	require.Equal(t, []bool{false}, h.registry.jobs)
	h.requireConserved(t, id)
}

func TestTimeoutFallbackResolution(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, twoMilestones(false))
	require.NoError(t, h.engine.CompleteMilestone(provider, id, 1))
	require.NoError(t, h.engine.RaiseDispute(provider, id, 1))

	h.now = start + 999
	require.ErrorIs(t, h.engine.ResolveDispute(provider, id, 1, true), coreerr.ErrNotAuthorized)
	h.now = start + 1000
	require.ErrorIs(t, h.engine.RaiseDispute(client, id, 0), coreerr.ErrInvalidState)
	require.ErrorIs(t, h.engine.ResolveDispute(stranger, id, 1, true), coreerr.ErrNotAuthorized)
	require.NoError(t, h.engine.ResolveDispute(provider, id, 1, true))
	require.ErrorIs(t, h.engine.ResolveDispute(client, id, 1, false), coreerr.ErrInvalidState)
	require.Equal(t, []uint64{0}, h.court.closed)
	require.Equal(t, 0, h.state.balance(provider).Cmp(big.NewInt(2000)))
	h.requireConserved(t, id)
}

func TestSettleFromArbitration(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, twoMilestones(false))
	require.NoError(t, h.engine.RaiseDispute(client, id, 0))

	require.ErrorIs(t, h.engine.SettleFromArbitration(id, 0), coreerr.ErrInvalidState)
	h.court.verdicts[0] = arbitration.Verdict{Winner: provider, Side: arbitration.SideDefendant, Final: false}
	require.ErrorIs(t, h.engine.SettleFromArbitration(id, 0), coreerr.ErrInvalidState)
	h.court.verdicts[0] = arbitration.Verdict{Winner: provider, Side: arbitration.SideDefendant, Final: true}
	require.NoError(t, h.engine.SettleFromArbitration(id, 0))
	require.ErrorIs(t, h.engine.SettleFromArbitration(id, 0), coreerr.ErrInvalidState)
	require.Empty(t, h.court.closed)
	require.Equal(t, 0, h.state.balance(provider).Cmp(big.NewInt(1000)))

	require.ErrorIs(t, h.engine.SettleFromArbitration(id, 1), coreerr.ErrInvalidState)
	h.requireConserved(t, id)
}

func TestDisputeWithoutCourt(t *testing.T) {
	h := newHarness(t)
	h.engine.SetCourt(nil)
	id := h.create(t, twoMilestones(false))
	require.NoError(t, h.engine.RaiseDispute(client, id, 0))
	milestone, _, err := h.engine.Milestone(id, 0)
	require.NoError(t, err)
	require.False(t, milestone.DisputeID.IsSome())
	require.ErrorIs(t, h.engine.SettleFromArbitration(id, 0), coreerr.ErrInvalidState)
}

func TestCancelMilestonePolicy(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, twoMilestones(false))

	require.ErrorIs(t, h.engine.CancelMilestone(client, id, 0), coreerr.ErrInvalidState)
	require.ErrorIs(t, h.engine.CancelMilestone(stranger, id, 0), coreerr.ErrNotAuthorized)
	h.now = start + 100
	require.NoError(t, h.engine.CancelMilestone(client, id, 0))
	require.ErrorIs(t, h.engine.CancelMilestone(client, id, 0), coreerr.ErrInvalidState)

	require.NoError(t, h.engine.CompleteMilestone(provider, id, 1))
	h.now = start + 500
	require.ErrorIs(t, h.engine.CancelMilestone(client, id, 1), coreerr.ErrInvalidState)
	require.NoError(t, h.engine.CancelMilestone(provider, id, 1))

	agreement, _, err := h.engine.Agreement(id)
	require.NoError(t, err)
	require.False(t, agreement.IsActive)
	require.Equal(t, 0, agreement.RefundedAmount.Cmp(big.NewInt(3000)))
	require.Equal(t, 0, h.state.balance(client).Cmp(big.NewInt(10_000)))
	require.Empty(t, h.registry.jobs)
	h.requireConserved(t, id)
}

func TestClaimAfterTimeout(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, twoMilestones(false))
	require.NoError(t, h.engine.CompleteMilestone(provider, id, 0))

	require.ErrorIs(t, h.engine.ClaimAfterTimeout(provider, id, 0), coreerr.ErrInvalidState)
	h.now = start + 1000
	require.ErrorIs(t, h.engine.ClaimAfterTimeout(client, id, 0), coreerr.ErrNotAuthorized)
	require.ErrorIs(t, h.engine.ClaimAfterTimeout(provider, id, 1), coreerr.ErrInvalidState)
	require.NoError(t, h.engine.ClaimAfterTimeout(provider, id, 0))
	require.ErrorIs(t, h.engine.ApproveAndRelease(client, id, 0), coreerr.ErrInvalidState)
	require.Equal(t, 0, h.state.balance(provider).Cmp(big.NewInt(1000)))
	h.requireConserved(t, id)
}
