package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/gatewright/internal/wf"
)

// Append writes one ledger entry for the run and returns its assigned
// sequence number.
//
// The sequence number is computed as MAX(seq)+1 for the run inside the
// same transaction as the insert, so it is strictly increasing and
// gap-free per run regardless of interleaving with other runs. Callers
// that need read-validate-append atomicity (the engine does) must hold
// their own per-run lock; the store only guarantees the seq invariant.
//
// The payload is serialized with wf.MarshalCanonicalValue. Timestamps
// are stored as UTC RFC 3339 Nano text and are informational only -
// replay ordering uses seq exclusively.
func (s *Store) Append(ctx context.Context, runID string, ts time.Time, kind wf.EntryKind, payload any) (int64, error) {
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", kind, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append %s: begin tx: %w", kind, err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM ledger_entries WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append %s: next seq: %w", kind, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (run_id, seq, ts, kind, payload)
		VALUES (?, ?, ?, ?, ?)
	`,
		runID,
		seq,
		ts.UTC().Format(time.RFC3339Nano),
		string(kind),
		payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append %s: commit: %w", kind, err)
	}

	return seq, nil
}
