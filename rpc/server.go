// Package rpc exposes a node over JSON-RPC 2.0.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"accordchain/core/calls"
	coreerr "accordchain/core/errors"
	"accordchain/core/types"
	"accordchain/observability"
	"accordchain/observability/logging"
)

const (
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader        = "X-Request-ID"
)

// Backend is the ledger surface served over RPC.
type Backend interface {
	Submit(ctx context.Context, call calls.Call, signer types.Account) (*calls.Receipt, error)
	Query(ctx context.Context, sel calls.Selector) (any, bool, error)
	BlockTime() uint64
}

// Config tunes the server.
type Config struct {
	// AuthToken, when set, must accompany accord_submit as a bearer token.
	AuthToken       string
	JWT             JWTConfig
	RateLimit       RateLimit
	MaxRequestBytes int64
}

type Server struct {
	backend     Backend
	cfg         Config
	limiter     *RateLimiter
	auth        *authenticator
	idempotency *IdempotencyStore
	events      EventSource
	logger      *slog.Logger
	httpServer  *http.Server
}

func NewServer(backend Backend, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = defaultMaxRequestBytes
	}
	return &Server{
		backend: backend,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit),
		auth:    newAuthenticator(cfg),
		logger:  logger.With(slog.String("component", "rpc")),
	}
}

// SetIdempotencyStore enables replay of submissions carrying an idempotency
// key.
func (s *Server) SetIdempotencyStore(store *IdempotencyStore) { s.idempotency = store }

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/events", s.handleEventsWS)
	r.Post("/", s.handle)
	r.Post("/rpc", s.handle)
	return otelhttp.NewHandler(r, "accord-rpc")
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", slog.String("addr", addr))
		errCh <- s.httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

type requestIDKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFrom returns the request id attached by the server middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}

	outcome := observability.OutcomeSuccess
	switch req.Method {
	case MethodSubmit:
		subject, authErr := s.auth.authorize(r)
		if authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			outcome = observability.OutcomeRejected
			break
		}
		outcome = s.handleSubmit(w, r, req, subject)
	case MethodQuery:
		outcome = s.handleQuery(w, r, req)
	case MethodBlockTime:
		writeResult(w, req.ID, s.backend.BlockTime())
	case "":
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		outcome = observability.OutcomeRejected
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		outcome = observability.OutcomeRejected
	}
	observability.RPC().Observe(req.Method, outcome, time.Since(started))
	s.logger.Debug("rpc request",
		slog.String("requestId", RequestIDFrom(r.Context())),
		slog.String("method", req.Method),
		slog.String("outcome", outcome),
		slog.Duration("duration", time.Since(started)))
}

func singleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object required")
	}
	return json.Unmarshal(req.Params[0], out)
}

func invalidArgument(err error) ErrorData {
	return ErrorData{Code: coreerr.Code(err), Detail: err.Error()}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, req *RPCRequest, subject types.Option[types.Account]) string {
	var params SubmitParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid submit parameters", err.Error())
		return observability.OutcomeRejected
	}
	if params.Signer.IsZero() {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "signer required", nil)
		return observability.OutcomeRejected
	}
	if bound, ok := subject.Get(); ok && bound != params.Signer {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "token not issued for signer", params.Signer.String())
		return observability.OutcomeRejected
	}
	source := clientID(r)
	if !s.limiter.Allow(source) {
		observability.RPC().RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "submission rate limit exceeded", source)
		return observability.OutcomeRejected
	}
	call, err := calls.DecodeCall(params.Contract, params.Method, params.Args)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid call", invalidArgument(err))
		return observability.OutcomeRejected
	}

	key := strings.TrimSpace(params.IdempotencyKey)
	signer := params.Signer.String()
	claimed := false
	if key != "" && s.idempotency != nil {
		requestHash := crypto.Keccak256Hash(req.Params[0]).Hex()
		cached, ok, err := s.idempotency.Claim(r.Context(), signer, key, requestHash)
		if errors.Is(err, ErrIdempotencyMismatch) || errors.Is(err, ErrIdempotencyInFlight) {
			writeError(w, http.StatusConflict, req.ID, codeIdempotencyConflict, err.Error(), nil)
			return observability.OutcomeRejected
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "idempotency lookup failed", err.Error())
			return observability.OutcomeError
		}
		if !ok {
			observability.RPC().RecordReplay()
			writeResult(w, req.ID, json.RawMessage(cached))
			return observability.OutcomeSuccess
		}
		claimed = true
	}

	receipt, err := s.backend.Submit(r.Context(), call, params.Signer)
	if err != nil {
		if claimed {
			s.releaseClaim(r, signer, key)
		}
		s.logger.Error("submit failed",
			slog.String("requestId", RequestIDFrom(r.Context())),
			slog.String("contract", params.Contract),
			slog.String("method", params.Method),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "submission failed", err.Error())
		return observability.OutcomeError
	}
	encoded, err := json.Marshal(receipt)
	if err != nil {
		if claimed {
			s.releaseClaim(r, signer, key)
		}
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to encode receipt", err.Error())
		return observability.OutcomeError
	}
	if claimed {
		if err := s.idempotency.Complete(context.WithoutCancel(r.Context()), signer, key, encoded); err != nil {
			s.logger.Warn("idempotency save failed",
				slog.String("requestId", RequestIDFrom(r.Context())),
				logging.MaskField("idempotencyKey", key),
				slog.Any("error", err))
		}
	}
	writeResult(w, req.ID, json.RawMessage(encoded))
	if !receipt.Success {
		return observability.OutcomeRejected
	}
	return observability.OutcomeSuccess
}

// releaseClaim frees a key whose submission produced no receipt.
func (s *Server) releaseClaim(r *http.Request, signer, key string) {
	if err := s.idempotency.Release(context.WithoutCancel(r.Context()), signer, key); err != nil {
		s.logger.Warn("idempotency release failed",
			slog.String("requestId", RequestIDFrom(r.Context())),
			logging.MaskField("idempotencyKey", key),
			slog.Any("error", err))
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params QueryParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid query parameters", err.Error())
		return observability.OutcomeRejected
	}
	sel, err := calls.DecodeSelector(params.Contract, params.Query, params.Args)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid query", invalidArgument(err))
		return observability.OutcomeRejected
	}
	value, found, err := s.backend.Query(r.Context(), sel)
	if err != nil {
		if coreerr.IsBusiness(err) {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "query rejected", invalidArgument(err))
			return observability.OutcomeRejected
		}
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "query failed", err.Error())
		return observability.OutcomeError
	}
	result := QueryResult{Found: found}
	if found {
		encoded, err := json.Marshal(value)
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to encode result", err.Error())
			return observability.OutcomeError
		}
		result.Value = encoded
	}
	writeResult(w, req.ID, result)
	return observability.OutcomeSuccess
}
