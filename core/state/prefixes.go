package state

import (
	"fmt"

	"accordchain/core/types"
)

const (
	balancePrefix       = "balance/"
	counterPrefix       = "counter/"
	registryProfilePref = "registry/profile/"
	registryReviewPref  = "registry/review/"
	escrowAgreementPref = "escrow/agreement/"
	escrowMilestonePref = "escrow/milestone/"
	arbDisputePrefix    = "arbitration/dispute/"
	arbArbitratorPrefix = "arbitration/arbitrator/"
	arbVotePrefix       = "arbitration/vote/"
	arbVotersPrefix     = "arbitration/voters/"
	metaBlockTimeKey    = "meta/block-time"
	metaNonceKey        = "meta/nonce"
	metaGenesisKey      = "meta/genesis"
	counterAgreements   = "escrow/agreements"
	counterDisputes     = "arbitration/disputes"
)

// BalancePrefix is the key prefix of every account balance.
var BalancePrefix = []byte(balancePrefix)

func counterKey(name string) []byte { return []byte(counterPrefix + name) }

func balanceKey(acc types.Account) []byte { return []byte(balancePrefix + acc.Hex()) }

func profileKey(acc types.Account) []byte { return []byte(registryProfilePref + acc.Hex()) }

func reviewKey(acc types.Account, index uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", registryReviewPref, acc.Hex(), index))
}

func agreementKey(id uint64) []byte { return []byte(fmt.Sprintf("%s%020d", escrowAgreementPref, id)) }

func milestoneKey(id uint64, index uint32) []byte {
	return []byte(fmt.Sprintf("%s%020d/%010d", escrowMilestonePref, id, index))
}

func disputeKey(id uint64) []byte { return []byte(fmt.Sprintf("%s%020d", arbDisputePrefix, id)) }

func arbitratorKey(acc types.Account) []byte { return []byte(arbArbitratorPrefix + acc.Hex()) }

func voteKey(id uint64, round uint32, acc types.Account) []byte {
	return []byte(fmt.Sprintf("%s%020d/%d/%s", arbVotePrefix, id, round, acc.Hex()))
}

func votersKey(id uint64, round uint32) []byte {
	return []byte(fmt.Sprintf("%s%020d/%d", arbVotersPrefix, id, round))
}
