package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeAccountRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x5a}, AccountLength)
	encoded, err := EncodeAccount(AccountHRP, raw)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(encoded, "acc1") {
		t.Fatalf("unexpected prefix: %s", encoded)
	}
	prefix, decoded, err := DecodeAccount(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prefix != AccountHRP {
		t.Fatalf("prefix mismatch: %s", prefix)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatalf("bytes mismatch: %x", decoded)
	}
}

func TestEncodeAccountRejectsWrongLength(t *testing.T) {
	if _, err := EncodeAccount(AccountHRP, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestDeriveAccountDeterministic(t *testing.T) {
	a := DeriveAccount("vault/escrow")
	b := DeriveAccount("vault/escrow")
	c := DeriveAccount("vault/registry")
	if a != b {
		t.Fatalf("derivation not deterministic")
	}
	if a == c {
		t.Fatalf("distinct labels collided")
	}
}
