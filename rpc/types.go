package rpc

import (
	"encoding/json"

	"accordchain/core/types"
)

const jsonRPCVersion = "2.0"

// Method names served by the JSON-RPC endpoint.
const (
	MethodSubmit    = "accord_submit"
	MethodQuery     = "accord_query"
	MethodBlockTime = "accord_blockTime"
)

const (
	codeParseError          = -32700
	codeInvalidRequest      = -32600
	codeMethodNotFound      = -32601
	codeInvalidParams       = -32602
	codeServerError         = -32000
	codeUnauthorized        = -32001
	codeIdempotencyConflict = -32010
	codeRateLimited         = -32020
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorData accompanies invalid-params errors raised by call decoding so
// clients can recover the error kind.
type ErrorData struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// SubmitParams is the single parameter object of accord_submit.
type SubmitParams struct {
	Contract       string          `json:"contract"`
	Method         string          `json:"method"`
	Args           json.RawMessage `json:"args,omitempty"`
	Signer         types.Account   `json:"signer"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// QueryParams is the single parameter object of accord_query.
type QueryParams struct {
	Contract string          `json:"contract"`
	Query    string          `json:"query"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// QueryResult is returned by accord_query. Value is absent when Found is
// false.
type QueryResult struct {
	Found bool            `json:"found"`
	Value json.RawMessage `json:"value,omitempty"`
}
