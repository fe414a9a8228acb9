package keys

import (
	"testing"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

func TestSignersVerify(t *testing.T) {
	for _, scheme := range []Scheme{SchemeEd25519, SchemeDilithium3} {
		t.Run(string(scheme), func(t *testing.T) {
			s, err := NewSigner(scheme, testSeed(1))
			if err != nil {
				t.Fatalf("NewSigner: %v", err)
			}
			msg := []byte("submitTask")
			sig, err := s.Sign(msg)
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			if err := Verify(scheme, s.PublicKey(), msg, sig); err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if err := Verify(scheme, s.PublicKey(), []byte("tampered"), sig); err == nil {
				t.Fatalf("expected tampered message to fail verification")
			}
		})
	}
}

func TestDilithiumSignatureSize(t *testing.T) {
	s, err := NewSigner(SchemeDilithium3, testSeed(2))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	sig, err := s.Sign([]byte("hello"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != mode3.SignatureSize {
		t.Fatalf("unexpected signature size: got %d want %d", len(sig), mode3.SignatureSize)
	}
}

func TestAddressIsStablePerSeed(t *testing.T) {
	a, _ := NewSigner(SchemeEd25519, testSeed(3))
	b, _ := NewSigner(SchemeEd25519, testSeed(3))
	c, _ := NewSigner(SchemeEd25519, testSeed(4))
	if a.Address() != b.Address() {
		t.Fatalf("same seed produced different addresses")
	}
	if a.Address() == c.Address() {
		t.Fatalf("different seeds produced the same address")
	}
	if a.Address() != AddressOf(a.PublicKey()) {
		t.Fatalf("Address does not match AddressOf(PublicKey)")
	}
}

func TestParseScheme(t *testing.T) {
	if s, err := ParseScheme(""); err != nil || s != SchemeEd25519 {
		t.Fatalf("empty scheme: got %q, %v", s, err)
	}
	if _, err := ParseScheme("rsa"); err == nil {
		t.Fatalf("expected unsupported scheme to fail")
	}
}
