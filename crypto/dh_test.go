package crypto

import (
	"bytes"
	"math/big"
	"testing"
)

func TestDeriveSharedSecretMatchesForBothPeers(t *testing.T) {
	group := DefaultGroup()

	alice, err := GenerateKeyPair(group)
	if err != nil {
		t.Fatalf("generate alice key pair: %v", err)
	}
	bob, err := GenerateKeyPair(group)
	if err != nil {
		t.Fatalf("generate bob key pair: %v", err)
	}

	aliceSecret, err := DeriveSharedSecret(bob.PublicBytes(), alice.Private, group)
	if err != nil {
		t.Fatalf("derive alice secret: %v", err)
	}
	bobSecret, err := DeriveSharedSecret(alice.PublicBytes(), bob.Private, group)
	if err != nil {
		t.Fatalf("derive bob secret: %v", err)
	}

	if !bytes.Equal(aliceSecret, bobSecret) {
		t.Fatalf("shared secrets differ:\n  alice=%x\n  bob=%x", aliceSecret, bobSecret)
	}
	if len(aliceSecret) != SharedSecretSize {
		t.Fatalf("expected %d-byte secret, got %d", SharedSecretSize, len(aliceSecret))
	}
}

func TestGenerateKeyPairPublicValueInRange(t *testing.T) {
	group := DefaultGroup()

	pair, err := GenerateKeyPair(group)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if pair.Public.Sign() <= 0 {
		t.Fatalf("public value must be positive")
	}
	if pair.Public.Cmp(group.P) >= 0 {
		t.Fatalf("public value must be reduced mod p")
	}
	if len(pair.PublicBytes()) == 0 {
		t.Fatalf("expected non-empty public wire encoding")
	}
}

func TestDeriveSharedSecretRejectsBadPeerValues(t *testing.T) {
	group := DefaultGroup()

	pair, err := GenerateKeyPair(group)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	if _, err := DeriveSharedSecret(nil, pair.Private, group); err == nil {
		t.Fatalf("expected error for empty peer public value")
	}

	tooLarge := new(big.Int).Add(group.P, big.NewInt(1))
	if _, err := DeriveSharedSecret(tooLarge.Bytes(), pair.Private, group); err == nil {
		t.Fatalf("expected error for peer public value >= p")
	}
}

func TestDeriveSharedSecretRejectsInvalidGroup(t *testing.T) {
	pair, err := GenerateKeyPair(DefaultGroup())
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	if _, err := DeriveSharedSecret(pair.PublicBytes(), pair.Private, Group{}); err == nil {
		t.Fatalf("expected error for missing group parameters")
	}
}
