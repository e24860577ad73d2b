package rpc

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrIdempotencyMismatch is returned when a key is reused with a different
	// request body.
	ErrIdempotencyMismatch = errors.New("idempotency key reuse with different request body")
	// ErrIdempotencyInFlight is returned while another request holds the key.
	ErrIdempotencyInFlight = errors.New("idempotency key in use by a pending request")
)

// IdempotencyStore caches submit responses by signer and client key. A key is
// claimed before the submission runs, so concurrent retries execute once.
type IdempotencyStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyStore opens the SQLite database at path. ":memory:" keeps the
// cache in process.
func NewIdempotencyStore(path string) (*IdempotencyStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps in-memory databases shared across calls.
	db.SetMaxOpenConns(1)
	store := &IdempotencyStore{db: db, now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *IdempotencyStore) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS idempotency_keys (
            signer TEXT NOT NULL,
            idempotency_key TEXT NOT NULL,
            request_hash TEXT NOT NULL,
            response_body BLOB,
            created_at INTEGER NOT NULL,
            PRIMARY KEY(signer, idempotency_key)
        );`
	_, err := s.db.Exec(schema)
	return err
}

func (s *IdempotencyStore) Close() error { return s.db.Close() }

// Claim reserves key for a new submission. It returns claimed=true when the
// caller must run the submission and then Complete or Release the key. When
// the key already holds a response for the same request, that response is
// returned instead.
func (s *IdempotencyStore) Claim(ctx context.Context, signer, key, requestHash string) (cached []byte, claimed bool, err error) {
	const stmt = `INSERT INTO idempotency_keys(signer, idempotency_key, request_hash, response_body, created_at)
            VALUES (?, ?, ?, NULL, ?) ON CONFLICT(signer, idempotency_key) DO NOTHING`
	res, err := s.db.ExecContext(ctx, stmt, signer, key, requestHash, s.now().Unix())
	if err != nil {
		return nil, false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if inserted == 1 {
		return nil, true, nil
	}
	body, err := s.Lookup(ctx, signer, key, requestHash)
	if err != nil {
		return nil, false, err
	}
	if body == nil {
		return nil, false, ErrIdempotencyInFlight
	}
	return body, false, nil
}

// Lookup returns the completed response for key, or nil when none exists yet.
func (s *IdempotencyStore) Lookup(ctx context.Context, signer, key, requestHash string) ([]byte, error) {
	const query = `SELECT response_body, request_hash FROM idempotency_keys WHERE signer = ? AND idempotency_key = ?`
	var body []byte
	var storedHash string
	err := s.db.QueryRowContext(ctx, query, signer, key).Scan(&body, &storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if storedHash != requestHash {
		return nil, ErrIdempotencyMismatch
	}
	return body, nil
}

// Complete records the response produced for a claimed key.
func (s *IdempotencyStore) Complete(ctx context.Context, signer, key string, body []byte) error {
	const stmt = `UPDATE idempotency_keys SET response_body = ? WHERE signer = ? AND idempotency_key = ?`
	_, err := s.db.ExecContext(ctx, stmt, body, signer, key)
	return err
}

// Release drops a claim that never produced a response so the key can be
// retried.
func (s *IdempotencyStore) Release(ctx context.Context, signer, key string) error {
	const stmt = `DELETE FROM idempotency_keys WHERE signer = ? AND idempotency_key = ? AND response_body IS NULL`
	_, err := s.db.ExecContext(ctx, stmt, signer, key)
	return err
}

// Prune drops entries older than ttl and returns how many were removed.
func (s *IdempotencyStore) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	const stmt = `DELETE FROM idempotency_keys WHERE created_at < ?`
	res, err := s.db.ExecContext(ctx, stmt, s.now().Add(-ttl).Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
