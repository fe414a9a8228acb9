// Package keys holds the session signer used to authorize ledger writes.
//
// A signer is created once per session from a 32-byte seed and shared
// read-only by every component that writes to the ledger. Seeds live in a
// filesystem KeyStore; the account address of a signer is the last 20 bytes
// of keccak256 over its public key.
package keys
