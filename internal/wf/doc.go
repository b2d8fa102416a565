// Package wf provides the core workflow types for gatewright.
//
// This package contains type definitions, canonical serialization, and
// content-addressed identity only. All other internal packages import wf;
// wf imports nothing internal. This keeps it the foundational layer with
// no circular dependencies.
//
// Key design constraints:
//   - The ledger is the single source of truth; every type here that
//     carries run state (RunView, Finding, DriftRecord, Plan) is a
//     materialized view reconstructible by folding ledger entries.
//   - All ordering uses the per-run seq column, never wall-clock
//     timestamps. Entry timestamps are informational.
//   - Finding and drift identity is content-addressed: SHA-256 with
//     domain separation over canonical JSON, so re-scanning the same
//     artifact yields the same IDs.
//   - No float types in ledger payloads; canonical JSON rejects them.
package wf
