// Package model defines the shared vocabulary of the cooperation protocol.
//
// It holds the wire enums (contract status, logical storage policy, the five
// behavior settings and the partial data status), the contract and participant
// records, row values and mutations, and the typed error taxonomy every other
// package returns.
//
// # Wire enums
//
// Every enum is a uint8 whose numeric code is load-bearing: the codes travel
// between host and participant and are persisted in SQLite. Decoding an
// undefined code never panics; it returns an *Error with code
// ErrCodeDecodeFailure. String and Parse are symmetric for every defined value.
//
// # Values
//
// Row data is carried as Value, a small tagged union over the SQLite storage
// classes (NULL, INTEGER, REAL, TEXT, BLOB). Values serialize to JSON as
// tagged objects so they survive any transport without changing kind, which
// keeps content hashes stable across host and participant.
package model
