package crypto

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccountPrefix defines the human-readable part used when rendering account
// identifiers as bech32 strings.
type AccountPrefix string

const (
	// AccountHRP is the prefix for participant accounts.
	AccountHRP AccountPrefix = "acc"
	// ContractHRP is the prefix used for the contract vault accounts.
	ContractHRP AccountPrefix = "accv"
)

// AccountLength is the width in bytes of every ledger account identifier.
const AccountLength = 32

// EncodeAccount renders the raw identifier using bech32 with the supplied
// prefix.
func EncodeAccount(prefix AccountPrefix, b []byte) (string, error) {
	if len(b) != AccountLength {
		return "", fmt.Errorf("account must be %d bytes long, got %d", AccountLength, len(b))
	}
	conv, err := bech32.ConvertBits(b, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(string(prefix), conv)
}

// DecodeAccount parses a bech32 account string and returns its prefix and raw
// bytes.
func DecodeAccount(s string) (AccountPrefix, []byte, error) {
	prefix, decoded, err := bech32.Decode(s)
	if err != nil {
		return "", nil, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AccountLength {
		return "", nil, fmt.Errorf("account must be %d bytes long, got %d", AccountLength, len(conv))
	}
	return AccountPrefix(prefix), conv, nil
}

// DeriveAccount deterministically derives a 32-byte identifier from a label.
// The ledger uses it for module vaults and tests use it for fixtures.
func DeriveAccount(label string) [AccountLength]byte {
	var out [AccountLength]byte
	copy(out[:], crypto.Keccak256([]byte(label)))
	return out
}
