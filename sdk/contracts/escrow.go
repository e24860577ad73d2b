package contracts

import (
	"context"

	"accordchain/core/calls"
	"accordchain/core/types"
	"accordchain/native/escrow"
)

// EscrowContract drives milestone agreements.
type EscrowContract struct {
	ledger Ledger
}

// CreateAgreement deposits params.Value from signer and returns the new
// agreement id.
func (c *EscrowContract) CreateAgreement(ctx context.Context, signer types.Account, params calls.CreateAgreement) (ContractResult[uint64], error) {
	return submit[uint64](ctx, c.ledger, params, signer)
}

func (c *EscrowContract) CompleteMilestone(ctx context.Context, signer types.Account, agreementID uint64, index uint32) (ContractResult[Empty], error) {
	return submitEmpty(ctx, c.ledger, calls.CompleteMilestone{AgreementID: agreementID, Index: index}, signer)
}

func (c *EscrowContract) ApproveAndRelease(ctx context.Context, signer types.Account, agreementID uint64, index uint32) (ContractResult[Empty], error) {
	return submitEmpty(ctx, c.ledger, calls.ApproveAndRelease{AgreementID: agreementID, Index: index}, signer)
}

// RaiseDispute returns the id of the arbitration dispute opened for the
// milestone.
func (c *EscrowContract) RaiseDispute(ctx context.Context, signer types.Account, agreementID uint64, index uint32) (ContractResult[types.Option[uint64]], error) {
	return submit[types.Option[uint64]](ctx, c.ledger, calls.RaiseDispute{AgreementID: agreementID, Index: index}, signer)
}

func (c *EscrowContract) ResolveDispute(ctx context.Context, signer types.Account, agreementID uint64, index uint32, releaseToProvider bool) (ContractResult[Empty], error) {
	return submitEmpty(ctx, c.ledger, calls.ResolveDispute{AgreementID: agreementID, Index: index, ReleaseToProvider: releaseToProvider}, signer)
}

func (c *EscrowContract) SettleFromArbitration(ctx context.Context, signer types.Account, agreementID uint64, index uint32) (ContractResult[Empty], error) {
	return submitEmpty(ctx, c.ledger, calls.SettleFromArbitration{AgreementID: agreementID, Index: index}, signer)
}

func (c *EscrowContract) CancelMilestone(ctx context.Context, signer types.Account, agreementID uint64, index uint32) (ContractResult[Empty], error) {
	return submitEmpty(ctx, c.ledger, calls.CancelMilestone{AgreementID: agreementID, Index: index}, signer)
}

func (c *EscrowContract) ClaimAfterTimeout(ctx context.Context, signer types.Account, agreementID uint64, index uint32) (ContractResult[Empty], error) {
	return submitEmpty(ctx, c.ledger, calls.ClaimAfterTimeout{AgreementID: agreementID, Index: index}, signer)
}

func (c *EscrowContract) GetAgreement(ctx context.Context, agreementID uint64) (*escrow.Agreement, error) {
	return queryRecord[*escrow.Agreement](ctx, c.ledger, calls.GetAgreement{AgreementID: agreementID})
}

func (c *EscrowContract) GetMilestone(ctx context.Context, agreementID uint64, index uint32) (*escrow.Milestone, error) {
	return queryRecord[*escrow.Milestone](ctx, c.ledger, calls.GetMilestone{AgreementID: agreementID, Index: index})
}

func (c *EscrowContract) GetMilestoneCount(ctx context.Context, agreementID uint64) (uint32, error) {
	return queryRecord[uint32](ctx, c.ledger, calls.GetMilestoneCount{AgreementID: agreementID})
}

func (c *EscrowContract) GetAllMilestones(ctx context.Context, agreementID uint64) ([]*escrow.Milestone, error) {
	return queryRecord[[]*escrow.Milestone](ctx, c.ledger, calls.GetAllMilestones{AgreementID: agreementID})
}
