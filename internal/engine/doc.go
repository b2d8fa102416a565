// Package engine implements the gated change workflow engine.
//
// The engine advances a run through a fixed phase progression, admitting
// each transition only when that phase's guard holds. All mutations are
// appended to the run's ledger; the engine never stores derived state.
//
// ARCHITECTURE:
//
// Single-Writer Per Run:
// Every operation takes the run's lock, reads the full ledger, folds it
// into a materialized view, validates against that view, and appends new
// entries. Two operations on the same run never interleave, so guard
// checks always see the state their append will extend.
//
// Operation Flow:
//  1. Acquire per-run lock
//  2. ReadEntries -> Fold -> RunView
//  3. Validate operation against the view (guards, decision sets)
//  4. Append entries to the ledger
//
// Derived state is disposable: deleting every view and refolding the
// ledger reproduces it byte for byte. VerifyReplay checks exactly that.
//
// CRITICAL PATTERNS:
//
// Content-Addressed Identity:
// Finding and drift IDs are SHA-256 fingerprints of their identifying
// fields. Re-registering the same observation is a no-op, which makes
// scans idempotent without any dedup bookkeeping.
//
// Deterministic Fold:
// Fold consumes entries in seq order, decodes canonical JSON payloads,
// and applies them with no randomness and no wall-clock reads. Any two
// folds of the same entries agree.
package engine
