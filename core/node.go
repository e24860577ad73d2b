// Package core hosts the ledger executor: it applies contract calls against
// leveldb-backed state one at a time and answers read-only queries.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"accordchain/core/calls"
	coreerr "accordchain/core/errors"
	"accordchain/core/events"
	"accordchain/core/state"
	"accordchain/core/types"
	"accordchain/native/arbitration"
	"accordchain/native/escrow"
	"accordchain/native/registry"
	"accordchain/observability"
	"accordchain/storage"
)

// Policies groups the per-contract parameters a node applies.
type Policies struct {
	Registry    registry.Policy
	Escrow      escrow.Policy
	Arbitration arbitration.Policy
}

// DefaultPolicies returns the default parameters of every contract.
func DefaultPolicies() Policies {
	return Policies{
		Registry:    registry.DefaultPolicy(),
		Escrow:      escrow.DefaultPolicy(),
		Arbitration: arbitration.DefaultPolicy(),
	}
}

// Node is the central controller, wiring state, engines and subscribers
// together.
type Node struct {
	db       storage.Database
	policies Policies
	logger   *slog.Logger
	tracer   trace.Tracer
	emitter  events.Emitter

	stateMu sync.Mutex
	nowFn   func() uint64
	// clock is the block time of the last applied call. Submissions never
	// observe an earlier time.
	clock uint64
}

// NewNode opens a node over db. The block clock resumes from the last
// committed block time.
func NewNode(db storage.Database, policies Policies, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	last, err := state.NewManager(db).BlockTime()
	if err != nil {
		return nil, fmt.Errorf("core: load block time: %w", err)
	}
	return &Node{
		db:       db,
		policies: policies,
		logger:   logger.With(slog.String("component", "node")),
		tracer:   otel.Tracer("accordchain/core"),
		emitter:  events.NoopEmitter{},
		nowFn:    func() uint64 { return uint64(time.Now().Unix()) },
		clock:    last,
	}, nil
}

// SetNowFunc replaces the wall clock used to stamp submissions.
func (n *Node) SetNowFunc(now func() uint64) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	n.nowFn = now
}

// SetEmitter installs the subscriber that receives committed events.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.emitter = emitter
}

// Policies returns the contract parameters in force.
func (n *Node) Policies() Policies { return n.policies }

// now reads the clock without advancing it. Callers hold stateMu.
func (n *Node) now() uint64 {
	t := n.nowFn()
	if t < n.clock {
		return n.clock
	}
	return t
}

// BlockTime returns the time the next submission would observe.
func (n *Node) BlockTime() uint64 {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.now()
}

func txHash(contract, method string, signer types.Account, nonce uint64) (string, error) {
	encoded, err := rlp.EncodeToBytes([]interface{}{contract, method, signer.Bytes(), nonce})
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hash(encoded).Hex(), nil
}

// Submit applies call on behalf of signer as one atomic transition. Calls
// rejected by contract rules produce a receipt with Success false and leave
// state untouched apart from the ledger nonce. Only storage or encoding
// failures are returned as errors.
func (n *Node) Submit(ctx context.Context, call calls.Call, signer types.Account) (*calls.Receipt, error) {
	if call == nil {
		return nil, fmt.Errorf("core: nil call: %w", coreerr.ErrInvalidArgument)
	}
	call = calls.Normalize(call)
	contract, method := call.Contract(), call.Method()
	_, span := n.tracer.Start(ctx, "accord.submit", trace.WithAttributes(
		attribute.String("accord.contract", contract),
		attribute.String("accord.method", method),
		attribute.String("accord.signer", signer.String()),
	))
	defer span.End()
	started := time.Now()

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	blockTime := n.now()
	tx, err := n.db.OpenTransaction()
	if err != nil {
		return nil, n.fail(span, contract, method, started, fmt.Errorf("core: open transaction: %w", err))
	}
	manager := state.NewManager(tx)
	nonce, err := manager.NextNonce()
	if err != nil {
		tx.Discard()
		return nil, n.fail(span, contract, method, started, err)
	}
	if err := manager.SetBlockTime(blockTime); err != nil {
		tx.Discard()
		return nil, n.fail(span, contract, method, started, err)
	}
	hash, err := txHash(contract, method, signer, nonce)
	if err != nil {
		tx.Discard()
		return nil, n.fail(span, contract, method, started, err)
	}
	receipt := &calls.Receipt{
		TxHash:    hash,
		Contract:  contract,
		Method:    method,
		Signer:    signer,
		BlockTime: blockTime,
	}
	span.SetAttributes(attribute.String("accord.tx_hash", hash))

	buffer := events.NewBuffer()
	result, execErr := n.execute(newEngines(manager, buffer, blockTime, n.policies), call, signer)
	if execErr != nil {
		tx.Discard()
		if !coreerr.IsBusiness(execErr) {
			return nil, n.fail(span, contract, method, started, execErr)
		}
		if err := n.recordRejection(blockTime); err != nil {
			return nil, n.fail(span, contract, method, started, err)
		}
		n.clock = blockTime
		receipt.Code = coreerr.Code(execErr)
		receipt.Error = execErr.Error()
		span.SetAttributes(attribute.String("accord.code", receipt.Code))
		n.logger.Info("call rejected",
			slog.String("contract", contract),
			slog.String("method", method),
			slog.String("signer", signer.String()),
			slog.String("code", receipt.Code),
			slog.String("error", receipt.Error))
		observability.Contracts().Observe(contract, method, observability.OutcomeRejected, time.Since(started))
		return receipt, nil
	}

	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			tx.Discard()
			return nil, n.fail(span, contract, method, started, fmt.Errorf("core: encode result: %w", err))
		}
		receipt.Return = raw
	}
	if err := tx.Commit(); err != nil {
		return nil, n.fail(span, contract, method, started, fmt.Errorf("core: commit: %w", err))
	}
	n.clock = blockTime
	receipt.Success = true
	receipt.Events = buffer.Payloads()
	buffer.Flush(n.emitter)
	n.publishVaults()

	n.logger.Debug("call committed",
		slog.String("contract", contract),
		slog.String("method", method),
		slog.String("signer", signer.String()),
		slog.String("txHash", hash),
		slog.Int("events", len(receipt.Events)))
	observability.Contracts().Observe(contract, method, observability.OutcomeSuccess, time.Since(started))
	return receipt, nil
}

// recordRejection persists the consumed nonce and block time of a call whose
// contract writes were discarded.
func (n *Node) recordRejection(blockTime uint64) error {
	tx, err := n.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("core: open transaction: %w", err)
	}
	manager := state.NewManager(tx)
	if _, err := manager.NextNonce(); err != nil {
		tx.Discard()
		return err
	}
	if err := manager.SetBlockTime(blockTime); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

func (n *Node) fail(span trace.Span, contract, method string, started time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	n.logger.Error("call failed",
		slog.String("contract", contract),
		slog.String("method", method),
		slog.Any("error", err))
	observability.Contracts().Observe(contract, method, observability.OutcomeError, time.Since(started))
	return err
}

func (n *Node) publishVaults() {
	manager := state.NewManager(n.db)
	for contract, vault := range map[string]types.Account{
		calls.ContractRegistry:    registry.VaultAccount,
		calls.ContractEscrow:      escrow.VaultAccount,
		calls.ContractArbitration: arbitration.VaultAccount,
	} {
		balance, err := manager.Balance(vault)
		if err != nil {
			continue
		}
		value, _ := new(big.Float).SetInt(balance).Float64()
		observability.Contracts().SetVaultBalance(contract, value)
	}
}

// Balance returns the committed balance of account.
func (n *Node) Balance(account types.Account) (*big.Int, error) {
	return state.NewManager(n.db).Balance(account)
}
