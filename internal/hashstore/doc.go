// Package hashstore keeps the per-table shadow store of row content hashes.
//
// Every tracked data table T has a companion table named T_COOP_METADATA,
// created lazily on first write. Host databases key metadata by
// (ROW_ID, PARTICIPANT_ID), where an empty participant id is the host's own
// copy and a non-empty one is the reference hash reported by a participant.
// Partial databases only ever write the empty participant id.
//
// All writes take a Querier so they join the caller's transaction; a data
// write and its metadata write commit or roll back together.
package hashstore
