// Package contracts is the typed client surface of the ledger. Every contract
// operation is exposed as a method returning a ContractResult, and every query
// as a method returning the decoded record.
package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"accordchain/core"
	"accordchain/core/calls"
	coreerr "accordchain/core/errors"
	"accordchain/core/types"
	"accordchain/rpc"
)

// Ledger submits calls and reads committed state.
type Ledger interface {
	SubmitTransaction(ctx context.Context, call calls.Call, signer types.Account) (*calls.Receipt, error)
	QueryStorage(ctx context.Context, sel calls.Selector) (any, bool, error)
}

// NodeLedger talks to an in-process node.
type NodeLedger struct {
	node *core.Node
}

func NewNodeLedger(node *core.Node) *NodeLedger { return &NodeLedger{node: node} }

func (l *NodeLedger) SubmitTransaction(ctx context.Context, call calls.Call, signer types.Account) (*calls.Receipt, error) {
	return l.node.Submit(ctx, call, signer)
}

func (l *NodeLedger) QueryStorage(ctx context.Context, sel calls.Selector) (any, bool, error) {
	return l.node.Query(ctx, sel)
}

// RPCLedger speaks JSON-RPC to a remote node. Requests are sent once; any
// failure to reach the node or to read its answer is reported as
// ErrTransportFailure.
type RPCLedger struct {
	endpoint string
	token    string
	client   *http.Client
	nextID   atomic.Int64
}

// RPCOption customises an RPCLedger.
type RPCOption func(*RPCLedger)

// WithAuthToken sets the bearer token sent with submissions.
func WithAuthToken(token string) RPCOption {
	return func(l *RPCLedger) { l.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) RPCOption {
	return func(l *RPCLedger) {
		if client != nil {
			l.client = client
		}
	}
}

func NewRPCLedger(endpoint string, opts ...RPCOption) *RPCLedger {
	l := &RPCLedger{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func transportError(format string, args ...any) error {
	return fmt.Errorf("sdk: %s: %w", fmt.Sprintf(format, args...), coreerr.ErrTransportFailure)
}

func (l *RPCLedger) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	var raw []json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("sdk: encode params: %w", err)
		}
		raw = []json.RawMessage{encoded}
	}
	body, err := json.Marshal(rpc.RPCRequest{JSONRPC: "2.0", Method: method, Params: raw, ID: l.nextID.Add(1)})
	if err != nil {
		return fmt.Errorf("sdk: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/rpc", bytes.NewReader(body))
	if err != nil {
		return transportError("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return transportError("%s: %v", method, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int             `json:"code"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return transportError("%s: decode response (status %d): %v", method, resp.StatusCode, err)
	}
	if envelope.Error != nil {
		var data rpc.ErrorData
		if len(envelope.Error.Data) > 0 && json.Unmarshal(envelope.Error.Data, &data) == nil && data.Code != "" {
			if cause := coreerr.FromCode(data.Code, data.Detail); coreerr.IsBusiness(cause) {
				return fmt.Errorf("sdk: %s: %s: %w", method, envelope.Error.Message, cause)
			}
		}
		return transportError("%s: rpc error %d: %s", method, envelope.Error.Code, envelope.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return transportError("%s: decode result: %v", method, err)
	}
	return nil
}

func (l *RPCLedger) SubmitTransaction(ctx context.Context, call calls.Call, signer types.Account) (*calls.Receipt, error) {
	contract, method, args, err := calls.EncodeCall(call)
	if err != nil {
		return nil, err
	}
	var receipt calls.Receipt
	params := rpc.SubmitParams{Contract: contract, Method: method, Args: args, Signer: signer}
	if err := l.call(ctx, rpc.MethodSubmit, params, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (l *RPCLedger) QueryStorage(ctx context.Context, sel calls.Selector) (any, bool, error) {
	contract, query, args, err := calls.EncodeSelector(sel)
	if err != nil {
		return nil, false, err
	}
	var result rpc.QueryResult
	if err := l.call(ctx, rpc.MethodQuery, rpc.QueryParams{Contract: contract, Query: query, Args: args}, &result); err != nil {
		return nil, false, err
	}
	if !result.Found {
		return nil, false, nil
	}
	value, err := sel.Decode(result.Value)
	if err != nil {
		return nil, false, transportError("%s.%s: decode value: %v", contract, query, err)
	}
	return value, true, nil
}

// BlockTime returns the remote node's clock.
func (l *RPCLedger) BlockTime(ctx context.Context) (uint64, error) {
	var ts uint64
	if err := l.call(ctx, rpc.MethodBlockTime, nil, &ts); err != nil {
		return 0, err
	}
	return ts, nil
}
