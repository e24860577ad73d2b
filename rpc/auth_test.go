package rpc

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"accordchain/core/calls"
	"accordchain/core/types"
)

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestSubmitJWTBoundToSigner(t *testing.T) {
	_, ts := newTestServer(t, Config{JWT: JWTConfig{Secret: "hmac", Issuer: "accord-auth"}})
	params := submitParams(t, calls.WithdrawStake{}, client, "")
	expires := jwt.NewNumericDate(time.Now().Add(time.Hour))

	valid := signToken(t, "hmac", jwt.RegisteredClaims{Subject: client.String(), Issuer: "accord-auth", ExpiresAt: expires})
	httpResp, resp := rpcCall(t, ts.URL, valid, MethodSubmit, params)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Nil(t, resp.Error)

	other := signToken(t, "hmac", jwt.RegisteredClaims{Subject: provider.String(), Issuer: "accord-auth", ExpiresAt: expires})
	httpResp, resp = rpcCall(t, ts.URL, other, MethodSubmit, params)
	require.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	cases := map[string]string{
		"wrong secret": signToken(t, "other", jwt.RegisteredClaims{Subject: client.String(), Issuer: "accord-auth", ExpiresAt: expires}),
		"wrong issuer": signToken(t, "hmac", jwt.RegisteredClaims{Subject: client.String(), Issuer: "elsewhere", ExpiresAt: expires}),
		"no expiry":    signToken(t, "hmac", jwt.RegisteredClaims{Subject: client.String(), Issuer: "accord-auth"}),
		"expired": signToken(t, "hmac", jwt.RegisteredClaims{
			Subject:   client.String(),
			Issuer:    "accord-auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}),
		"bad subject": signToken(t, "hmac", jwt.RegisteredClaims{Subject: "nobody", Issuer: "accord-auth", ExpiresAt: expires}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			httpResp, resp := rpcCall(t, ts.URL, token, MethodSubmit, params)
			require.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)
			require.Equal(t, codeUnauthorized, resp.Error.Code)
		})
	}
}

func TestStaticTokenAcceptedAlongsideJWT(t *testing.T) {
	_, ts := newTestServer(t, Config{AuthToken: "static", JWT: JWTConfig{Secret: "hmac"}})
	params := submitParams(t, calls.WithdrawStake{}, types.AccountFromLabel("anyone"), "")
	httpResp, resp := rpcCall(t, ts.URL, "static", MethodSubmit, params)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Nil(t, resp.Error)
}
