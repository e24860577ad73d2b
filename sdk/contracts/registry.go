package contracts

import (
	"context"
	"math/big"

	"accordchain/core/calls"
	"accordchain/core/types"
	"accordchain/native/registry"
)

// RegistryContract manages professional profiles and reviews.
type RegistryContract struct {
	ledger Ledger
}

func (c *RegistryContract) Register(ctx context.Context, signer types.Account, role registry.Role, metadataURI string, stake *big.Int) (ContractResult[*registry.Profile], error) {
	return submit[*registry.Profile](ctx, c.ledger, calls.Register{Role: role, MetadataURI: metadataURI, Stake: stake}, signer)
}

func (c *RegistryContract) IncreaseStake(ctx context.Context, signer types.Account, amount *big.Int) (ContractResult[*registry.Profile], error) {
	return submit[*registry.Profile](ctx, c.ledger, calls.IncreaseStake{Amount: amount}, signer)
}

// SubmitReview returns the index of the stored review.
func (c *RegistryContract) SubmitReview(ctx context.Context, signer, professional types.Account, rating uint8, comment string) (ContractResult[uint64], error) {
	return submit[uint64](ctx, c.ledger, calls.SubmitReview{Professional: professional, Rating: rating, Comment: comment}, signer)
}

// WithdrawStake returns the refunded amount.
func (c *RegistryContract) WithdrawStake(ctx context.Context, signer types.Account) (ContractResult[*big.Int], error) {
	return submit[*big.Int](ctx, c.ledger, calls.WithdrawStake{}, signer)
}

func (c *RegistryContract) GetProfile(ctx context.Context, account types.Account) (*registry.Profile, error) {
	return queryRecord[*registry.Profile](ctx, c.ledger, calls.GetProfile{Account: account})
}

func (c *RegistryContract) GetReview(ctx context.Context, professional types.Account, index uint64) (*registry.Review, error) {
	return queryRecord[*registry.Review](ctx, c.ledger, calls.GetReview{Professional: professional, Index: index})
}

func (c *RegistryContract) GetReviewCount(ctx context.Context, professional types.Account) (uint64, error) {
	return queryRecord[uint64](ctx, c.ledger, calls.GetReviewCount{Professional: professional})
}

// GetReviews returns every review of professional in submission order.
func (c *RegistryContract) GetReviews(ctx context.Context, professional types.Account) ([]*registry.Review, error) {
	count, err := c.GetReviewCount(ctx, professional)
	if err != nil {
		return nil, err
	}
	out := make([]*registry.Review, 0, count)
	for i := uint64(0); i < count; i++ {
		review, err := c.GetReview(ctx, professional, i)
		if err != nil {
			return nil, err
		}
		out = append(out, review)
	}
	return out, nil
}

func (c *RegistryContract) GetMinStake(ctx context.Context, role registry.Role) (*big.Int, error) {
	return queryRecord[*big.Int](ctx, c.ledger, calls.GetMinStake{Role: role})
}

func (c *RegistryContract) IsActiveProfessional(ctx context.Context, account types.Account) (bool, error) {
	return queryRecord[bool](ctx, c.ledger, calls.IsActiveProfessional{Account: account})
}
