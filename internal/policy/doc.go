// Package policy holds the logical storage policy of every shared table and
// the rules each policy implies.
//
// A policy is set per (database, table) and overwritten freely; there is no
// versioning on the policy itself. Contracts snapshot policies at generation
// time, so a later change only affects contracts generated afterwards.
//
// Lookups are cached per database file and invalidated on Set.
package policy
