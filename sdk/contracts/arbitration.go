package contracts

import (
	"context"
	"math/big"

	"accordchain/core/calls"
	"accordchain/core/types"
	"accordchain/native/arbitration"
)

// ArbitrationContract manages arbitrators and stake-weighted disputes.
type ArbitrationContract struct {
	ledger Ledger
}

func (c *ArbitrationContract) RegisterArbitrator(ctx context.Context, signer types.Account, stake *big.Int) (ContractResult[*arbitration.Arbitrator], error) {
	return submit[*arbitration.Arbitrator](ctx, c.ledger, calls.RegisterArbitrator{Stake: stake}, signer)
}

func (c *ArbitrationContract) IncreaseArbitratorStake(ctx context.Context, signer types.Account, amount *big.Int) (ContractResult[*arbitration.Arbitrator], error) {
	return submit[*arbitration.Arbitrator](ctx, c.ledger, calls.IncreaseArbitratorStake{Amount: amount}, signer)
}

func (c *ArbitrationContract) WithdrawArbitratorStake(ctx context.Context, signer types.Account) (ContractResult[*big.Int], error) {
	return submit[*big.Int](ctx, c.ledger, calls.WithdrawArbitratorStake{}, signer)
}

// CreateDispute returns the id of the new dispute.
func (c *ArbitrationContract) CreateDispute(ctx context.Context, signer, defendant types.Account, description, evidenceURI string) (ContractResult[uint64], error) {
	return submit[uint64](ctx, c.ledger, calls.CreateDispute{Defendant: defendant, Description: description, EvidenceURI: evidenceURI}, signer)
}

func (c *ArbitrationContract) StartVoting(ctx context.Context, signer types.Account, disputeID uint64) (ContractResult[Empty], error) {
	return submitEmpty(ctx, c.ledger, calls.StartVoting{DisputeID: disputeID}, signer)
}

func (c *ArbitrationContract) Vote(ctx context.Context, signer types.Account, disputeID uint64, choice arbitration.Side) (ContractResult[Empty], error) {
	return submitEmpty(ctx, c.ledger, calls.Vote{DisputeID: disputeID, Choice: choice}, signer)
}

// FinalizeDispute returns the winning side.
func (c *ArbitrationContract) FinalizeDispute(ctx context.Context, signer types.Account, disputeID uint64) (ContractResult[arbitration.Side], error) {
	return submit[arbitration.Side](ctx, c.ledger, calls.FinalizeDispute{DisputeID: disputeID}, signer)
}

func (c *ArbitrationContract) AppealDispute(ctx context.Context, signer types.Account, disputeID uint64) (ContractResult[Empty], error) {
	return submitEmpty(ctx, c.ledger, calls.AppealDispute{DisputeID: disputeID}, signer)
}

func (c *ArbitrationContract) CancelDispute(ctx context.Context, signer types.Account, disputeID uint64) (ContractResult[Empty], error) {
	return submitEmpty(ctx, c.ledger, calls.CancelDispute{DisputeID: disputeID}, signer)
}

func (c *ArbitrationContract) GetDispute(ctx context.Context, disputeID uint64) (*arbitration.Dispute, error) {
	return queryRecord[*arbitration.Dispute](ctx, c.ledger, calls.GetDispute{DisputeID: disputeID})
}

func (c *ArbitrationContract) GetArbitrator(ctx context.Context, account types.Account) (*arbitration.Arbitrator, error) {
	return queryRecord[*arbitration.Arbitrator](ctx, c.ledger, calls.GetArbitrator{Account: account})
}

// GetVote returns the ballot of arbitrator in the dispute's current round.
func (c *ArbitrationContract) GetVote(ctx context.Context, disputeID uint64, arbitrator types.Account) (*arbitration.Vote, error) {
	return queryRecord[*arbitration.Vote](ctx, c.ledger, calls.GetVote{DisputeID: disputeID, Arbitrator: arbitrator})
}

// GetVoteInRound returns the ballot of arbitrator in a specific round.
func (c *ArbitrationContract) GetVoteInRound(ctx context.Context, disputeID uint64, arbitrator types.Account, round uint32) (*arbitration.Vote, error) {
	return queryRecord[*arbitration.Vote](ctx, c.ledger, calls.GetVote{DisputeID: disputeID, Arbitrator: arbitrator, Round: types.Some(round)})
}

func (c *ArbitrationContract) IsActiveArbitrator(ctx context.Context, account types.Account) (bool, error) {
	return queryRecord[bool](ctx, c.ledger, calls.IsActiveArbitrator{Account: account})
}

func (c *ArbitrationContract) GetMinArbitratorStake(ctx context.Context) (*big.Int, error) {
	return queryRecord[*big.Int](ctx, c.ledger, calls.GetMinArbitratorStake{})
}

func (c *ArbitrationContract) GetVotingResults(ctx context.Context, disputeID uint64) (*arbitration.VotingResults, error) {
	return queryRecord[*arbitration.VotingResults](ctx, c.ledger, calls.GetVotingResults{DisputeID: disputeID})
}

func (c *ArbitrationContract) HasVotingEnded(ctx context.Context, disputeID uint64) (bool, error) {
	return queryRecord[bool](ctx, c.ledger, calls.HasVotingEnded{DisputeID: disputeID})
}
