package rpc

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"accordchain/core/types"
)

// JWTConfig enables HMAC-signed bearer tokens for accord_submit. The token's
// sub claim must name the submitting signer.
type JWTConfig struct {
	Secret    string
	Issuer    string
	ClockSkew time.Duration
}

type authenticator struct {
	token  string
	secret []byte
	issuer string
	skew   time.Duration
}

func newAuthenticator(cfg Config) *authenticator {
	a := &authenticator{
		token:  strings.TrimSpace(cfg.AuthToken),
		issuer: strings.TrimSpace(cfg.JWT.Issuer),
		skew:   cfg.JWT.ClockSkew,
	}
	if secret := strings.TrimSpace(cfg.JWT.Secret); secret != "" {
		a.secret = []byte(secret)
	}
	return a
}

func (a *authenticator) enabled() bool { return a.token != "" || len(a.secret) > 0 }

// authorize checks the bearer credential. A static token authorizes any
// signer; a JWT returns the account it was issued to.
func (a *authenticator) authorize(r *http.Request) (types.Option[types.Account], *RPCError) {
	none := types.None[types.Account]()
	if !a.enabled() {
		return none, nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	raw, ok := strings.CutPrefix(header, "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return none, &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if a.token != "" && subtle.ConstantTimeCompare([]byte(raw), []byte(a.token)) == 1 {
		return none, nil
	}
	if len(a.secret) == 0 {
		return none, &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	subject, err := a.parseToken(raw)
	if err != nil {
		return none, &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials", Data: err.Error()}
	}
	return types.Some(subject), nil
}

func (a *authenticator) parseToken(raw string) (types.Account, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.skew),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return types.Account{}, err
	}
	if !token.Valid {
		return types.Account{}, errors.New("token invalid")
	}
	subject, err := types.ParseAccount(claims.Subject)
	if err != nil {
		return types.Account{}, errors.New("subject is not an account")
	}
	return subject, nil
}
