package ledger

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/text/unicode/norm"
)

// Bytes32 is a fixed-width ledger string slot: UTF-8 text, NFC-normalized,
// right-padded with zero bytes.
type Bytes32 [32]byte

// EncodeBytes32 normalizes s and packs it into a Bytes32. Empty input is
// ErrEmpty, input longer than 32 bytes after normalization is ErrOverflow and
// invalid UTF-8 is ErrInvalidTx.
func EncodeBytes32(s string) (Bytes32, error) {
	var out Bytes32
	if !utf8.ValidString(s) {
		return out, fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidTx, s)
	}
	n := norm.NFC.String(s)
	if n == "" {
		return out, ErrEmpty
	}
	if len(n) > len(out) {
		return out, fmt.Errorf("%w: %q is %d bytes", ErrOverflow, s, len(n))
	}
	if bytes.IndexByte([]byte(n), 0) >= 0 {
		return out, fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidTx, s)
	}
	copy(out[:], n)
	return out, nil
}

// CheckBytes32 reports whether s can be encoded.
func CheckBytes32(s string) error {
	_, err := EncodeBytes32(s)
	return err
}

// String returns the text with padding removed.
func (b Bytes32) String() string {
	end := bytes.IndexByte(b[:], 0)
	if end < 0 {
		end = len(b)
	}
	s := b[:end]
	if !utf8.Valid(s) {
		return hexutil.Encode(b[:])
	}
	return string(s)
}

func (b Bytes32) IsZero() bool { return b == Bytes32{} }

// Hex returns the 0x-prefixed encoding of all 32 bytes.
func (b Bytes32) Hex() string { return hexutil.Encode(b[:]) }

func (b Bytes32) MarshalText() ([]byte, error) {
	return hexutil.Bytes(b[:]).MarshalText()
}

func (b *Bytes32) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("Bytes32", input, b[:])
}
