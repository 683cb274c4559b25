package siwe

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestLocalVerifierRecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := crypto.PubkeyToAddress(key.PublicKey)

	message := "example.com wants you to sign in with your Ethereum account"
	digest := accounts.TextHash([]byte(message))
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig[64] += 27

	v := NewLocalVerifier()
	got, err := v.Verify(context.Background(), message, "0x"+bytesToHex(sig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != expected.Hex() {
		t.Fatalf("got %s, want %s", got, expected.Hex())
	}
}

func bytesToHex(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
