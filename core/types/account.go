package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"accordchain/crypto"
)

// Account is the opaque 32-byte identifier shared by every contract. Accounts
// are compared for equality only; no ordering is implied.
type Account [crypto.AccountLength]byte

// ZeroAccount denotes the absent account.
var ZeroAccount Account

// AccountFromBytes copies b into an Account. The slice must be exactly 32 bytes.
func AccountFromBytes(b []byte) (Account, error) {
	var acc Account
	if len(b) != len(acc) {
		return acc, fmt.Errorf("account must be %d bytes, got %d", len(acc), len(b))
	}
	copy(acc[:], b)
	return acc, nil
}

// AccountFromLabel derives a deterministic account from a human label. Used
// for module vaults and fixtures.
func AccountFromLabel(label string) Account {
	return Account(crypto.DeriveAccount(label))
}

// ParseAccount accepts either the bech32 form ("acc1...") or a 0x-prefixed
// 64 character hex string.
func ParseAccount(s string) (Account, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ZeroAccount, fmt.Errorf("account must not be empty")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		raw, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return ZeroAccount, fmt.Errorf("invalid hex account: %w", err)
		}
		return AccountFromBytes(raw)
	}
	_, raw, err := crypto.DecodeAccount(trimmed)
	if err != nil {
		return ZeroAccount, err
	}
	return AccountFromBytes(raw)
}

// IsZero reports whether the account is the absent account.
func (a Account) IsZero() bool { return a == ZeroAccount }

// Bytes returns a copy of the raw identifier.
func (a Account) Bytes() []byte { return append([]byte(nil), a[:]...) }

// Hex returns the lowercase hex encoding without prefix.
func (a Account) Hex() string { return hex.EncodeToString(a[:]) }

// String renders the bech32 form of the account.
func (a Account) String() string {
	encoded, err := crypto.EncodeAccount(crypto.AccountHRP, a[:])
	if err != nil {
		return "0x" + a.Hex()
	}
	return encoded
}

// MarshalText implements encoding.TextMarshaler.
func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Account) UnmarshalText(text []byte) error {
	parsed, err := ParseAccount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
