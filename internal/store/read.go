package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/gatewright/internal/wf"
)

// ReadEntries returns every ledger entry for the run in seq order.
// A single ordered query over one connection gives the caller a
// consistent prefix of the run's ledger (snapshot-at-read).
func (s *Store) ReadEntries(ctx context.Context, runID string) ([]wf.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, ts, kind, payload
		FROM ledger_entries
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	defer rows.Close()

	var entries []wf.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("read entries: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}

	return entries, nil
}

// LastSeq returns the highest assigned sequence number for the run, or
// 0 if the run has no entries.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM ledger_entries WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// ListRuns returns the IDs of all started runs, ordered by their start
// timestamp then run ID for a stable listing.
func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id
		FROM ledger_entries
		WHERE kind = ?
		ORDER BY ts ASC, run_id ASC
	`, string(wf.KindRunStarted))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return runs, nil
}

// HasRun reports whether any entry exists for the run.
func (s *Store) HasRun(ctx context.Context, runID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM ledger_entries WHERE run_id = ? LIMIT 1
	`, runID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has run: %w", err)
	}
	return true, nil
}

func scanEntry(rows *sql.Rows) (wf.LedgerEntry, error) {
	var (
		entry   wf.LedgerEntry
		ts      string
		kind    string
		payload string
	)
	if err := rows.Scan(&entry.RunID, &entry.Seq, &ts, &kind, &payload); err != nil {
		return entry, fmt.Errorf("scan entry: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return entry, fmt.Errorf("scan entry seq %d: bad timestamp %q: %w", entry.Seq, ts, err)
	}
	entry.Timestamp = parsed
	entry.Kind = wf.EntryKind(kind)
	entry.Payload = []byte(payload)

	return entry, nil
}
