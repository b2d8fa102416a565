// Package store provides SQLite-backed durable storage for the
// gatewright decision ledger.
//
// The ledger is the single persisted, authoritative artifact: an
// append-only record set keyed by (run_id, seq). There is no update or
// delete operation; Append is the only write. Everything else in the
// system (run views, findings, plans) is a materialized view rebuilt by
// folding entries in order.
//
// # Invariants
//
//   - seq is assigned inside the append transaction as MAX(seq)+1 for
//     the run: strictly increasing, gap-free, monotonic per run.
//   - Appends for different runs are independent; no cross-run locking.
//   - Payloads are stored as canonical JSON (wf.MarshalCanonicalValue)
//     so two replays of the same entries compare byte for byte.
//   - All reads ORDER BY seq ASC for deterministic replay.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
