package registry

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerr "accordchain/core/errors"
	"accordchain/core/events"
	"accordchain/core/types"
)

type mockState struct {
	profiles map[types.Account]*Profile
	reviews  map[string]*Review
	balances map[types.Account]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		profiles: make(map[types.Account]*Profile),
		reviews:  make(map[string]*Review),
		balances: make(map[types.Account]*big.Int),
	}
}

func (m *mockState) RegistryGetProfile(account types.Account) (*Profile, bool, error) {
	p, ok := m.profiles[account]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) RegistryPutProfile(p *Profile) error {
	m.profiles[p.Account] = p.Clone()
	return nil
}

func reviewKey(professional types.Account, index uint64) string {
	return fmt.Sprintf("%x/%d", professional[:], index)
}

func (m *mockState) RegistryGetReview(professional types.Account, index uint64) (*Review, bool, error) {
	r, ok := m.reviews[reviewKey(professional, index)]
	if !ok {
		return nil, false, nil
	}
	clone := *r
	return &clone, true, nil
}

func (m *mockState) RegistryPutReview(professional types.Account, index uint64, r *Review) error {
	clone := *r
	m.reviews[reviewKey(professional, index)] = &clone
	return nil
}

func (m *mockState) balance(acc types.Account) *big.Int {
	return types.CloneBalance(m.balances[acc])
}

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

type capture struct{ types []string }

func (c *capture) Emit(evt events.Event) { c.types = append(c.types, evt.EventType()) }

func newTestEngine(t *testing.T) (*Engine, *mockState, *capture) {
	t.Helper()
	state := newMockState()
	engine := NewEngine()
	engine.SetState(state)
	rec := &capture{}
	engine.SetEmitter(rec)
	now := uint64(1_700_000_000)
	engine.SetNowFunc(func() uint64 { return now })
	return engine, state, rec
}

var (
	alice = types.AccountFromLabel("alice")
	bob   = types.AccountFromLabel("bob")
	carol = types.AccountFromLabel("carol")
)

func TestRegisterLocksStake(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	state.balances[alice] = types.Tokens(500)

	profile, err := engine.Register(alice, RoleLawyer, " ipfs://profile ", types.Tokens(200))
	require.NoError(t, err)
	require.True(t, profile.IsActive)
	require.Equal(t, "ipfs://profile", profile.MetadataURI)
	require.Equal(t, uint64(1_700_000_000), profile.RegisteredAt)
	require.Equal(t, 0, state.balance(alice).Cmp(types.Tokens(300)))
	require.Equal(t, 0, state.balance(VaultAccount).Cmp(types.Tokens(200)))
	require.Equal(t, []string{EventTypeRegistered}, rec.types)
}

func TestRegisterRejections(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	state.balances[alice] = types.Tokens(1000)

	_, err := engine.Register(alice, RoleArbitrator, "", types.Tokens(149))
	require.ErrorIs(t, err, coreerr.ErrInsufficientStake)

	_, err = engine.Register(types.ZeroAccount, RoleLawyer, "", types.Tokens(100))
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)

	_, err = engine.Register(alice, RoleNotary, "", types.Tokens(50))
	require.NoError(t, err)
	_, err = engine.Register(alice, RoleNotary, "", types.Tokens(50))
	require.ErrorIs(t, err, coreerr.ErrAlreadyRegistered)

	_, err = engine.WithdrawStake(alice)
	require.NoError(t, err)
	_, err = engine.Register(alice, RoleNotary, "", types.Tokens(50))
	require.ErrorIs(t, err, coreerr.ErrAlreadyRegistered)

	_, err = engine.Register(bob, RoleDoctor, "", types.Tokens(100))
	require.ErrorIs(t, err, coreerr.ErrInsufficientBalance)
}

func TestSubmitReviewScores(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	state.balances[alice] = types.Tokens(100)
	_, err := engine.Register(alice, RoleLawyer, "", types.Tokens(100))
	require.NoError(t, err)

	_, err = engine.SubmitReview(bob, alice, 0, "")
	require.ErrorIs(t, err, coreerr.ErrInvalidRating)
	_, err = engine.SubmitReview(bob, alice, 6, "")
	require.ErrorIs(t, err, coreerr.ErrInvalidRating)

	idx, err := engine.SubmitReview(bob, alice, 4, "solid")
	require.NoError(t, err)
	require.Equal(t, uint64(0), idx)
	idx, err = engine.SubmitReview(carol, alice, 5, "great")
	require.NoError(t, err)
	require.Equal(t, uint64(1), idx)

	profile, ok, err := engine.Profile(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(450), profile.ReputationScore)
	require.InDelta(t, 4.5, profile.AverageRating(), 1e-9)

	count, err := engine.ReviewCount(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	review, ok, err := engine.Review(alice, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, carol, review.Reviewer)
	require.Equal(t, uint8(5), review.Rating)
}

func TestSubmitReviewGuards(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	state.balances[alice] = types.Tokens(100)

	_, err := engine.SubmitReview(bob, alice, 3, "")
	require.ErrorIs(t, err, coreerr.ErrNotFound)

	_, err = engine.Register(alice, RoleLawyer, "", types.Tokens(100))
	require.NoError(t, err)
	_, err = engine.SubmitReview(alice, alice, 5, "")
	require.ErrorIs(t, err, coreerr.ErrNotAuthorized)

	_, err = engine.WithdrawStake(alice)
	require.NoError(t, err)
	_, err = engine.SubmitReview(bob, alice, 5, "")
	require.ErrorIs(t, err, coreerr.ErrInvalidState)
}

func TestNoReviewsScoreZero(t *testing.T) {
	require.Equal(t, uint64(0), ReputationScore(0, 0))
	require.Equal(t, float64(0), (&Profile{}).AverageRating())
	require.Equal(t, uint64(300), ReputationScore(3, 1))
}

func TestIncreaseAndWithdrawStake(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	state.balances[alice] = types.Tokens(300)
	_, err := engine.Register(alice, RoleAuditor, "", types.Tokens(100))
	require.NoError(t, err)

	_, err = engine.IncreaseStake(alice, big.NewInt(0))
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)
	_, err = engine.IncreaseStake(bob, types.Tokens(1))
	require.ErrorIs(t, err, coreerr.ErrNotFound)

	profile, err := engine.IncreaseStake(alice, types.Tokens(50))
	require.NoError(t, err)
	require.Equal(t, 0, profile.StakeAmount.Cmp(types.Tokens(150)))

	returned, err := engine.WithdrawStake(alice)
	require.NoError(t, err)
	require.Equal(t, 0, returned.Cmp(types.Tokens(150)))
	require.Equal(t, 0, state.balance(alice).Cmp(types.Tokens(300)))
	require.Equal(t, 0, state.balance(VaultAccount).Sign())

	profile, _, err = engine.Profile(alice)
	require.NoError(t, err)
	require.False(t, profile.IsActive)
	require.Equal(t, 0, profile.StakeAmount.Sign())
	require.True(t, profile.WithdrawnAt.IsSome())

	_, err = engine.WithdrawStake(alice)
	require.ErrorIs(t, err, coreerr.ErrInvalidState)
	_, err = engine.IncreaseStake(alice, types.Tokens(1))
	require.ErrorIs(t, err, coreerr.ErrInvalidState)

	require.Equal(t, []string{EventTypeRegistered, EventTypeStakeIncreased, EventTypeStakeWithdrawn}, rec.types)
}

func TestRecordJob(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	state.balances[alice] = types.Tokens(100)
	_, err := engine.Register(alice, RoleLawyer, "", types.Tokens(100))
	require.NoError(t, err)

	require.NoError(t, engine.RecordJob(alice, true))
	require.NoError(t, engine.RecordJob(alice, false))
	require.NoError(t, engine.RecordJob(bob, true))

	profile, _, err := engine.Profile(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(2), profile.TotalJobs)
	require.Equal(t, uint64(1), profile.SuccessfulJobs)
	_, ok, err := engine.Profile(bob)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMinStakePolicy(t *testing.T) {
	engine := NewEngine()
	require.Equal(t, 0, engine.MinStake(RoleArbitrator).Cmp(types.Tokens(150)))
	require.Equal(t, 0, engine.MinStake(RoleConsultantOther).Cmp(types.Tokens(50)))

	engine.SetPolicy(Policy{MinStake: map[Role]*big.Int{RoleLawyer: big.NewInt(-5)}})
	require.Equal(t, 0, engine.MinStake(RoleLawyer).Sign())
	require.Equal(t, 0, engine.MinStake(RoleDoctor).Sign())
}

func TestRoleText(t *testing.T) {
	for _, role := range Roles() {
		text, err := role.MarshalText()
		require.NoError(t, err)
		var decoded Role
		require.NoError(t, decoded.UnmarshalText(text))
		require.Equal(t, role, decoded)
	}
	_, err := ParseRole("plumber")
	require.Error(t, err)
	parsed, err := ParseRole("consultantother")
	require.NoError(t, err)
	require.Equal(t, RoleConsultantOther, parsed)
}
