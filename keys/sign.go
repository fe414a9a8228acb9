package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Scheme names a signature algorithm.
type Scheme string

const (
	SchemeEd25519    Scheme = "ed25519"
	SchemeDilithium3 Scheme = "dilithium3"
)

// SeedSize is the seed length accepted by every scheme.
const SeedSize = 32

var ErrBadSignature = errors.New("keys: signature verification failed")

// Signer signs ledger transactions. Implementations are safe for concurrent use.
type Signer interface {
	Scheme() Scheme
	PublicKey() []byte
	Address() common.Address
	Sign(message []byte) ([]byte, error)
}

// ParseScheme accepts "" as ed25519.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case "", SchemeEd25519:
		return SchemeEd25519, nil
	case SchemeDilithium3:
		return SchemeDilithium3, nil
	default:
		return "", fmt.Errorf("keys: unsupported scheme %q", s)
	}
}

// NewSigner derives a signer for scheme from a 32-byte seed.
func NewSigner(scheme Scheme, seed []byte) (Signer, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("keys: seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	switch scheme {
	case SchemeEd25519, "":
		priv := ed25519.NewKeyFromSeed(seed)
		pub := priv.Public().(ed25519.PublicKey)
		return &ed25519Signer{priv: priv, pub: pub, addr: AddressOf(pub)}, nil
	case SchemeDilithium3:
		var s [mode3.SeedSize]byte
		copy(s[:], seed)
		pk, sk := mode3.NewKeyFromSeed(&s)
		var buf [mode3.PublicKeySize]byte
		pk.Pack(&buf)
		pub := append([]byte(nil), buf[:]...)
		return &dilithiumSigner{sk: sk, pub: pub, addr: AddressOf(pub)}, nil
	default:
		return nil, fmt.Errorf("keys: unsupported scheme %q", scheme)
	}
}

type ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	addr common.Address
}

func (s *ed25519Signer) Scheme() Scheme          { return SchemeEd25519 }
func (s *ed25519Signer) PublicKey() []byte       { return append([]byte(nil), s.pub...) }
func (s *ed25519Signer) Address() common.Address { return s.addr }

func (s *ed25519Signer) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return ed25519.Sign(s.priv, digest[:]), nil
}

type dilithiumSigner struct {
	sk   *mode3.PrivateKey
	pub  []byte
	addr common.Address
}

func (s *dilithiumSigner) Scheme() Scheme          { return SchemeDilithium3 }
func (s *dilithiumSigner) PublicKey() []byte       { return append([]byte(nil), s.pub...) }
func (s *dilithiumSigner) Address() common.Address { return s.addr }

func (s *dilithiumSigner) Sign(message []byte) ([]byte, error) {
	digest := sha3.Sum256(message)
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.sk, digest[:], sig)
	return sig, nil
}

// Verify checks sig over message for the given scheme and public key.
func Verify(scheme Scheme, pub, message, sig []byte) error {
	switch scheme {
	case SchemeEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrBadSignature, ed25519.PublicKeySize)
		}
		digest := sha256.Sum256(message)
		if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig) {
			return ErrBadSignature
		}
		return nil
	case SchemeDilithium3:
		if len(pub) != mode3.PublicKeySize {
			return fmt.Errorf("%w: dilithium3 public key must be %d bytes", ErrBadSignature, mode3.PublicKeySize)
		}
		var buf [mode3.PublicKeySize]byte
		copy(buf[:], pub)
		var pk mode3.PublicKey
		pk.Unpack(&buf)
		digest := sha3.Sum256(message)
		if !mode3.Verify(&pk, digest[:], sig) {
			return ErrBadSignature
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrBadSignature, scheme)
	}
}

// AddressOf returns the account address for a public key.
func AddressOf(pub []byte) common.Address {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(pub)
	return common.BytesToAddress(h.Sum(nil)[12:])
}
