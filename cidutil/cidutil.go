// Package cidutil pins the content-identifier scheme used across taskledger.
//
// Every identifier handed to the ledger is a CIDv1. Stores that hash locally
// use the raw multicodec with a sha2-256 multihash so the identifier of a blob
// is reproducible from its bytes alone.
package cidutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Version is the only CID version accepted on the ledger.
const Version = 1

var ErrNotV1 = errors.New("cidutil: identifier is not a CIDv1")

// CIDv1RawSHA256 returns the CIDv1 string (raw + sha2-256) for data.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// ParseV1 decodes s and rejects anything that is not a defined CIDv1.
func ParseV1(s string) (cid.Cid, error) {
	id, err := cid.Decode(strings.TrimSpace(s))
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: decode %q: %w", s, err)
	}
	if !id.Defined() || id.Version() != Version {
		return cid.Undef, ErrNotV1
	}
	return id, nil
}

// Matches reports whether id is the raw sha2-256 CIDv1 of data.
func Matches(id cid.Cid, data []byte) bool {
	want, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return false
	}
	return want.Equals(id)
}
