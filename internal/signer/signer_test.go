package signer

import (
	"context"
	"testing"
)

func TestMockSignAndResolveRecoveryID(t *testing.T) {
	m, err := NewMock([]byte("test-seed"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addr, err := m.PublicAddress(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var digest [32]byte
	copy(digest[:], []byte("0123456789abcdef0123456789abcdef"))

	r, s, err := m.Sign(context.Background(), digest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, err := ResolveRecoveryID(digest, r, s, LegacyRecoveryCandidates, addr)
	if err != nil {
		t.Fatalf("unexpected error resolving recovery id: %v", err)
	}
	if v != 0 && v != 1 {
		t.Fatalf("expected v in {0,1}, got %d", v)
	}
}

func TestResolveRecoveryIDFailsForWrongAddress(t *testing.T) {
	m, _ := NewMock([]byte("seed-a"))
	other, _ := NewMock([]byte("seed-b"))

	var digest [32]byte
	copy(digest[:], []byte("0123456789abcdef0123456789abcdef"))

	r, s, err := m.Sign(context.Background(), digest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	otherAddr, _ := other.PublicAddress(context.Background())

	_, err = ResolveRecoveryID(digest, r, s, LegacyRecoveryCandidates, otherAddr)
	if err == nil {
		t.Fatal("expected recovery to fail against the wrong address")
	}
}
