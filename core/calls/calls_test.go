package calls

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerr "accordchain/core/errors"
	"accordchain/core/types"
	"accordchain/native/arbitration"
	"accordchain/native/escrow"
	"accordchain/native/registry"
)

func TestEncodeDecodeCallRoundTrip(t *testing.T) {
	provider := types.AccountFromLabel("provider")
	oracle := types.AccountFromLabel("oracle")
	original := CreateAgreement{
		Provider:           provider,
		Descriptions:       []string{"design", "build"},
		Amounts:            []*big.Int{big.NewInt(400), big.NewInt(600)},
		Deadlines:          []uint64{100, 200},
		DisputeTimeout:     500,
		Oracle:             types.Some(oracle),
		Value:              big.NewInt(1000),
		OracleVerification: []bool{false, true},
	}
	contract, method, args, err := EncodeCall(original)
	require.NoError(t, err)
	require.Equal(t, ContractEscrow, contract)
	require.Equal(t, "create_agreement", method)

	decoded, err := DecodeCall(contract, method, args)
	require.NoError(t, err)
	got, ok := decoded.(CreateAgreement)
	require.True(t, ok, "decoded %T", decoded)
	require.Equal(t, provider, got.Provider)
	require.Equal(t, original.Descriptions, got.Descriptions)
	require.Equal(t, 0, got.Value.Cmp(big.NewInt(1000)))
	require.Equal(t, 0, got.Amounts[1].Cmp(big.NewInt(600)))
	require.Equal(t, []bool{false, true}, got.OracleVerification)
	value, ok := got.Oracle.Get()
	require.True(t, ok)
	require.Equal(t, oracle, value)

	var vc ValueCall = got
	require.Equal(t, 0, vc.AttachedValue().Cmp(big.NewInt(1000)))
}

func TestDecodeCallNamedRefTypes(t *testing.T) {
	contract, method, args, err := EncodeCall(RaiseDispute{AgreementID: 3, Index: 1})
	require.NoError(t, err)
	decoded, err := DecodeCall(contract, method, args)
	require.NoError(t, err)
	require.Equal(t, RaiseDispute{AgreementID: 3, Index: 1}, decoded)

	contract, method, args, err = EncodeCall(Vote{DisputeID: 7, Choice: arbitration.SideDefendant})
	require.NoError(t, err)
	require.Contains(t, string(args), "FavorDefendant")
	decoded, err = DecodeCall(contract, method, args)
	require.NoError(t, err)
	require.Equal(t, Vote{DisputeID: 7, Choice: arbitration.SideDefendant}, decoded)

	contract, method, args, err = EncodeCall(Register{Role: registry.RoleNotary, MetadataURI: "ipfs://x", Stake: big.NewInt(5)})
	require.NoError(t, err)
	decoded, err = DecodeCall(contract, method, args)
	require.NoError(t, err)
	reg := decoded.(Register)
	require.Equal(t, registry.RoleNotary, reg.Role)
	require.Equal(t, "ipfs://x", reg.MetadataURI)
}

func TestDecodeCallRejectsUnknownAndMalformed(t *testing.T) {
	_, err := DecodeCall(ContractEscrow, "steal_funds", nil)
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)

	_, err = DecodeCall(ContractArbitration, "vote", json.RawMessage(`{"disputeId":"not-a-number"}`))
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)

	_, _, _, err = EncodeCall(nil)
	require.True(t, errors.Is(err, coreerr.ErrInvalidArgument))
}

func TestDecodeCallWithoutArgs(t *testing.T) {
	decoded, err := DecodeCall(ContractRegistry, "withdraw_stake", nil)
	require.NoError(t, err)
	require.Equal(t, WithdrawStake{}, decoded)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, StartVoting{DisputeID: 2}, Normalize(&StartVoting{DisputeID: 2}))
	require.Equal(t, StartVoting{DisputeID: 2}, Normalize(StartVoting{DisputeID: 2}))
}

func TestMethodsListsEveryCall(t *testing.T) {
	methods := Methods()
	require.Len(t, methods, 21)
	require.Contains(t, methods, "escrow.settle_from_arbitration")
	require.Contains(t, methods, "arbitration.appeal_dispute")
	require.Contains(t, methods, "registry.submit_review")
	for i := 1; i < len(methods); i++ {
		require.Less(t, methods[i-1], methods[i])
	}
}

func TestSelectorRoundTrip(t *testing.T) {
	account := types.AccountFromLabel("alice")
	contract, query, args, err := EncodeSelector(GetBalance{Account: account})
	require.NoError(t, err)
	require.Equal(t, ContractLedger, contract)
	require.Equal(t, "get_balance", query)

	sel, err := DecodeSelector(contract, query, args)
	require.NoError(t, err)
	require.Equal(t, GetBalance{Account: account}, sel)

	sel, err = DecodeSelector(ContractEscrow, "get_milestone", json.RawMessage(`{"agreementId":4,"index":2}`))
	require.NoError(t, err)
	require.Equal(t, GetMilestone{AgreementID: 4, Index: 2}, sel)

	_, err = DecodeSelector(ContractLedger, "get_everything", nil)
	require.ErrorIs(t, err, coreerr.ErrInvalidArgument)
}

func TestSelectorDecodeResultShapes(t *testing.T) {
	value, err := GetBalance{}.Decode(json.RawMessage(`12345`))
	require.NoError(t, err)
	require.Equal(t, 0, value.(*big.Int).Cmp(big.NewInt(12345)))

	value, err = HasVotingEnded{}.Decode(json.RawMessage(`true`))
	require.NoError(t, err)
	require.Equal(t, true, value)

	value, err = GetMilestoneCount{}.Decode(json.RawMessage(`3`))
	require.NoError(t, err)
	require.Equal(t, uint32(3), value)

	raw, err := json.Marshal(&escrow.Milestone{Description: "design", Amount: big.NewInt(9), Status: escrow.MilestoneCompleted})
	require.NoError(t, err)
	value, err = GetMilestone{}.Decode(raw)
	require.NoError(t, err)
	ms := value.(*escrow.Milestone)
	require.Equal(t, "design", ms.Description)
	require.Equal(t, escrow.MilestoneCompleted, ms.Status)
}

func TestReceiptDecodeReturn(t *testing.T) {
	receipt := &Receipt{Return: json.RawMessage(`42`)}
	var id uint64
	require.NoError(t, receipt.DecodeReturn(&id))
	require.Equal(t, uint64(42), id)

	empty := &Receipt{}
	require.NoError(t, empty.DecodeReturn(&id))
	require.Equal(t, uint64(42), id)
}
