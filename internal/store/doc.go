// Package store provides SQLite-backed storage for cooperative databases.
//
// A node keeps its files in one Catalog directory:
//   - coop.db: node identity, issued and received contracts, known hosts
//   - <name>.db: a database this node hosts
//   - <name>.dbpart: a partial database this node holds as a participant
//
// Host and partial databases carry their own COOP_* tables (policies,
// participants, behaviors, pending actions) next to the user tables so that
// a data write, its metadata and any queued review commit in one transaction.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - one open connection: exactly one writer per file
//
// Row identity is SQLite's rowid. Tables declared with a single INTEGER
// PRIMARY KEY alias it, which keeps ids stable across host and participant.
package store
