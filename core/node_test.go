package core

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"accordchain/core/calls"
	coreerr "accordchain/core/errors"
	"accordchain/core/events"
	"accordchain/core/genesis"
	"accordchain/core/types"
	"accordchain/native/arbitration"
	"accordchain/native/escrow"
	"accordchain/native/registry"
	"accordchain/storage"
)

const day = 24 * 60 * 60

var (
	alice   = types.AccountFromLabel("alice")
	bob     = types.AccountFromLabel("bob")
	charlie = types.AccountFromLabel("charlie")
	dave    = types.AccountFromLabel("dave")
	eve     = types.AccountFromLabel("eve")
)

type nodeHarness struct {
	t     *testing.T
	db    *storage.LevelDB
	node  *Node
	clock uint64
	sink  *events.Buffer
}

func newNodeHarness(t *testing.T) *nodeHarness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	spec := &genesis.Spec{GenesisTime: "2024-01-01T00:00:00Z"}
	for _, acc := range []types.Account{alice, bob, charlie, dave, eve} {
		spec.Alloc = append(spec.Alloc, genesis.AllocSpec{Account: acc.String(), Balance: types.Tokens(10_000).String()})
	}
	require.NoError(t, spec.Validate())
	applied, err := genesis.Apply(db, spec)
	require.NoError(t, err)
	require.True(t, applied)

	node, err := NewNode(db, DefaultPolicies(), nil)
	require.NoError(t, err)
	h := &nodeHarness{t: t, db: db, node: node, clock: 1_704_067_200 + 100, sink: events.NewBuffer()}
	node.SetNowFunc(func() uint64 { return h.clock })
	node.SetEmitter(h.sink)
	return h
}

func (h *nodeHarness) submit(call calls.Call, signer types.Account) *calls.Receipt {
	h.t.Helper()
	receipt, err := h.node.Submit(context.Background(), call, signer)
	require.NoError(h.t, err)
	return receipt
}

func (h *nodeHarness) mustSucceed(call calls.Call, signer types.Account) *calls.Receipt {
	h.t.Helper()
	receipt := h.submit(call, signer)
	require.True(h.t, receipt.Success, "%s.%s failed: %s", receipt.Contract, receipt.Method, receipt.Error)
	return receipt
}

func (h *nodeHarness) balance(acc types.Account) *big.Int {
	h.t.Helper()
	value, ok, err := h.node.Query(context.Background(), calls.GetBalance{Account: acc})
	require.NoError(h.t, err)
	require.True(h.t, ok)
	return value.(*big.Int)
}

func (h *nodeHarness) totalSupply() *big.Int {
	h.t.Helper()
	total := big.NewInt(0)
	for _, acc := range []types.Account{alice, bob, charlie, dave, eve, registry.VaultAccount, escrow.VaultAccount, arbitration.VaultAccount} {
		total.Add(total, h.balance(acc))
	}
	return total
}

func tokens(n int64) *big.Int { return types.Tokens(n) }

func TestNodeWorkedExampleThroughEscrowDispute(t *testing.T) {
	h := newNodeHarness(t)
	supply := h.totalSupply()

	receipt := h.mustSucceed(calls.CreateAgreement{
		Provider:       bob,
		Descriptions:   []string{"design", "build"},
		Amounts:        []*big.Int{tokens(400), tokens(600)},
		Deadlines:      []uint64{h.clock + 10*day, h.clock + 20*day},
		DisputeTimeout: h.clock + 30*day,
		Value:          tokens(1000),
	}, alice)
	var agreementID uint64
	require.NoError(t, receipt.DecodeReturn(&agreementID))
	require.Equal(t, uint64(0), agreementID)
	require.Equal(t, escrow.EventTypeAgreementCreated, receipt.Events[0].Type)
	require.Equal(t, 0, h.balance(escrow.VaultAccount).Cmp(tokens(1000)))

	h.mustSucceed(calls.RegisterArbitrator{Stake: tokens(200)}, charlie)
	h.mustSucceed(calls.RegisterArbitrator{Stake: tokens(300)}, dave)
	h.mustSucceed(calls.RegisterArbitrator{Stake: tokens(150)}, eve)

	h.mustSucceed(calls.CompleteMilestone{AgreementID: agreementID, Index: 0}, bob)
	receipt = h.mustSucceed(calls.RaiseDispute{AgreementID: agreementID, Index: 0}, alice)
	var disputeID types.Option[uint64]
	require.NoError(t, receipt.DecodeReturn(&disputeID))
	id, ok := disputeID.Get()
	require.True(t, ok)

	value, found, err := h.node.Query(context.Background(), calls.GetDispute{DisputeID: id})
	require.NoError(t, err)
	require.True(t, found)
	dispute := value.(*arbitration.Dispute)
	require.Equal(t, alice, dispute.Claimant)
	require.Equal(t, bob, dispute.Defendant)
	origin, ok := dispute.Origin.Get()
	require.True(t, ok)
	require.Equal(t, arbitration.Origin{AgreementID: agreementID, MilestoneIndex: 0}, origin)

	h.mustSucceed(calls.StartVoting{DisputeID: id}, alice)
	h.mustSucceed(calls.Vote{DisputeID: id, Choice: arbitration.SideClaimant}, charlie)
	h.mustSucceed(calls.Vote{DisputeID: id, Choice: arbitration.SideDefendant}, dave)
	h.mustSucceed(calls.Vote{DisputeID: id, Choice: arbitration.SideClaimant}, eve)

	value, _, err = h.node.Query(context.Background(), calls.GetVotingResults{DisputeID: id})
	require.NoError(t, err)
	results := value.(*arbitration.VotingResults)
	require.Equal(t, 0, results.ForClaimant.Cmp(tokens(350)))
	require.Equal(t, 0, results.ForDefendant.Cmp(tokens(300)))
	require.False(t, results.Ended)

	rejected := h.submit(calls.FinalizeDispute{DisputeID: id}, charlie)
	require.False(t, rejected.Success)
	require.Equal(t, "InvalidState", rejected.Code)

	h.clock += 7 * day
	receipt = h.mustSucceed(calls.FinalizeDispute{DisputeID: id}, charlie)
	var winner arbitration.Side
	require.NoError(t, receipt.DecodeReturn(&winner))
	require.Equal(t, arbitration.SideClaimant, winner)

	again := h.submit(calls.FinalizeDispute{DisputeID: id}, charlie)
	require.False(t, again.Success)

	// The verdict is not final while the loser may still appeal.
	early := h.submit(calls.SettleFromArbitration{AgreementID: agreementID, Index: 0}, eve)
	require.False(t, early.Success)
	require.Equal(t, "InvalidState", early.Code)

	h.clock += 3 * day
	before := h.balance(alice)
	h.mustSucceed(calls.SettleFromArbitration{AgreementID: agreementID, Index: 0}, eve)
	require.Equal(t, 0, new(big.Int).Sub(h.balance(alice), before).Cmp(tokens(400)))

	value, _, err = h.node.Query(context.Background(), calls.GetMilestone{AgreementID: agreementID, Index: 0})
	require.NoError(t, err)
	require.Equal(t, escrow.MilestoneResolved, value.(*escrow.Milestone).Status)

	value, _, err = h.node.Query(context.Background(), calls.GetArbitrator{Account: charlie})
	require.NoError(t, err)
	require.Equal(t, uint64(110), value.(*arbitration.Arbitrator).Reputation)
	value, _, err = h.node.Query(context.Background(), calls.GetArbitrator{Account: dave})
	require.NoError(t, err)
	require.Equal(t, uint64(100), value.(*arbitration.Arbitrator).Reputation)

	require.Equal(t, 0, supply.Cmp(h.totalSupply()))
	require.NotEmpty(t, h.sink.Events())
}

func TestNodeOracleResolutionClosesArbitration(t *testing.T) {
	h := newNodeHarness(t)
	receipt := h.mustSucceed(calls.CreateAgreement{
		Provider:       bob,
		Descriptions:   []string{"design"},
		Amounts:        []*big.Int{tokens(400)},
		Deadlines:      []uint64{h.clock + 10*day},
		DisputeTimeout: h.clock + 30*day,
		Oracle:         types.Some(eve),
		Value:          tokens(400),
	}, alice)
	var agreementID uint64
	require.NoError(t, receipt.DecodeReturn(&agreementID))

	h.mustSucceed(calls.RegisterArbitrator{Stake: tokens(200)}, charlie)
	receipt = h.mustSucceed(calls.RaiseDispute{AgreementID: agreementID, Index: 0}, alice)
	var disputeID types.Option[uint64]
	require.NoError(t, receipt.DecodeReturn(&disputeID))
	id, ok := disputeID.Get()
	require.True(t, ok)
	h.mustSucceed(calls.StartVoting{DisputeID: id}, alice)
	h.mustSucceed(calls.Vote{DisputeID: id, Choice: arbitration.SideClaimant}, charlie)

	h.mustSucceed(calls.ResolveDispute{AgreementID: agreementID, Index: 0, ReleaseToProvider: true}, eve)

	value, _, err := h.node.Query(context.Background(), calls.GetDispute{DisputeID: id})
	require.NoError(t, err)
	require.Equal(t, arbitration.DisputeCancelled, value.(*arbitration.Dispute).Status)
	late := h.submit(calls.FinalizeDispute{DisputeID: id}, charlie)
	require.False(t, late.Success)
	require.Equal(t, "InvalidState", late.Code)

	h.mustSucceed(calls.WithdrawArbitratorStake{}, charlie)
	require.Equal(t, 0, h.balance(charlie).Cmp(tokens(10_000)))
	require.Equal(t, 0, h.balance(bob).Cmp(tokens(10_400)))
}

func TestNodeRejectedCallLeavesStateUntouched(t *testing.T) {
	h := newNodeHarness(t)
	before := h.balance(alice)

	receipt := h.submit(calls.CreateAgreement{
		Provider:       bob,
		Descriptions:   []string{"design"},
		Amounts:        []*big.Int{tokens(400)},
		Deadlines:      []uint64{h.clock + day},
		DisputeTimeout: h.clock + 2*day,
		Value:          tokens(500),
	}, alice)
	require.False(t, receipt.Success)
	require.Equal(t, "AmountMismatch", receipt.Code)
	require.NotEmpty(t, receipt.Error)
	require.NotEmpty(t, receipt.TxHash)
	require.Empty(t, receipt.Events)
	require.Equal(t, 0, before.Cmp(h.balance(alice)))
	require.Empty(t, h.sink.Events())

	_, found, err := h.node.Query(context.Background(), calls.GetAgreement{AgreementID: 0})
	require.NoError(t, err)
	require.False(t, found)

	// The id counter was rolled back with the rejected call.
	receipt = h.mustSucceed(calls.CreateAgreement{
		Provider:       bob,
		Descriptions:   []string{"design"},
		Amounts:        []*big.Int{tokens(400)},
		Deadlines:      []uint64{h.clock + day},
		DisputeTimeout: h.clock + 2*day,
		Value:          tokens(400),
	}, alice)
	var id uint64
	require.NoError(t, receipt.DecodeReturn(&id))
	require.Equal(t, uint64(0), id)
}

func TestNodeTxHashesAreUnique(t *testing.T) {
	h := newNodeHarness(t)
	call := calls.WithdrawStake{}
	first := h.submit(call, alice)
	second := h.submit(call, alice)
	require.False(t, first.Success)
	require.Equal(t, "NotFound", first.Code)
	require.NotEqual(t, first.TxHash, second.TxHash)
}

func TestNodeClockIsMonotonic(t *testing.T) {
	h := newNodeHarness(t)
	receipt := h.mustSucceed(calls.Register{Role: registry.RoleNotary, MetadataURI: "ipfs://notary", Stake: tokens(50)}, bob)
	stamped := receipt.BlockTime

	h.clock -= 1_000
	require.Equal(t, stamped, h.node.BlockTime())
	receipt = h.submit(calls.IncreaseStake{Amount: tokens(1)}, bob)
	require.Equal(t, stamped, receipt.BlockTime)

	value, _, err := h.node.Query(context.Background(), calls.GetBlockTime{})
	require.NoError(t, err)
	require.Equal(t, stamped, value)
}

func TestNodeClockResumesAfterRestart(t *testing.T) {
	h := newNodeHarness(t)
	receipt := h.mustSucceed(calls.Register{Role: registry.RoleNotary, Stake: tokens(50)}, bob)

	restarted, err := NewNode(h.db, DefaultPolicies(), nil)
	require.NoError(t, err)
	restarted.SetNowFunc(func() uint64 { return 5 })
	require.Equal(t, receipt.BlockTime, restarted.BlockTime())
}

func TestNodeRegistryReviewFlow(t *testing.T) {
	h := newNodeHarness(t)
	h.mustSucceed(calls.Register{Role: registry.RoleLawyer, MetadataURI: "ipfs://bob", Stake: tokens(100)}, bob)

	bad := h.submit(calls.SubmitReview{Professional: bob, Rating: 6}, alice)
	require.Equal(t, "InvalidRating", bad.Code)
	h.mustSucceed(calls.SubmitReview{Professional: bob, Rating: 4, Comment: "solid"}, alice)
	h.mustSucceed(calls.SubmitReview{Professional: bob, Rating: 5}, charlie)

	value, found, err := h.node.Query(context.Background(), calls.GetProfile{Account: bob})
	require.NoError(t, err)
	require.True(t, found)
	profile := value.(*registry.Profile)
	require.Equal(t, uint64(450), profile.ReputationScore)
	require.InDelta(t, 4.5, profile.AverageRating(), 1e-9)

	value, _, err = h.node.Query(context.Background(), calls.GetReviewCount{Professional: bob})
	require.NoError(t, err)
	require.Equal(t, uint64(2), value)

	value, _, err = h.node.Query(context.Background(), calls.IsActiveProfessional{Account: bob})
	require.NoError(t, err)
	require.Equal(t, true, value)

	value, _, err = h.node.Query(context.Background(), calls.GetMinStake{Role: registry.RoleArbitrator})
	require.NoError(t, err)
	require.Equal(t, 0, value.(*big.Int).Cmp(tokens(150)))
}

func TestNodeQueryRejectsNilAndUnknown(t *testing.T) {
	h := newNodeHarness(t)
	_, _, err := h.node.Query(context.Background(), nil)
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)
	_, err = h.node.Submit(context.Background(), nil, alice)
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)

	_, found, err := h.node.Query(context.Background(), calls.GetVotingResults{DisputeID: 42})
	require.NoError(t, err)
	require.False(t, found)
}
