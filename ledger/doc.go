// Package ledger is the client side of the append-only task and role ledger.
//
// Writes are signed transactions dispatched to an Engine; a returned TxHandle
// only means the engine accepted the transaction. Callers that need finality
// use WaitFinal, which distinguishes a transaction still pending at the
// deadline from a network failure while polling.
//
// Fixed-width fields (data ids, role ids, descriptions) are Bytes32 values.
// Encoding overflow is a caller-side error; nothing is silently truncated.
package ledger
