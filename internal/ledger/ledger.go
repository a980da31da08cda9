// Package ledger persists per-item transcription state so interrupted runs
// can resume without redoing finished work. Two backends exist: one JSON
// state file per item for file/directory/bucket inputs, and in-place CSV
// rewriting when the input itself is a CSV table.
package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/karmi/pn-transcriptions/internal/entity"
)

// maxErrorLen bounds persisted failure text.
const maxErrorLen = 500

// Artifacts carries the subtitle exports fetched alongside a completed
// transcript.
type Artifacts struct {
	VTT string
	SRT string
}

// Ledger is the durable, resumable store of per-identifier state. Every
// mutation is a single atomic write for that identifier; the ledger is the
// only state shared between workers.
type Ledger interface {
	// Load reads existing state at the start of a run. A missing store is an
	// empty mapping; an unreadable one is a fatal error.
	Load(ctx context.Context) (map[string]entity.LedgerEntry, error)

	// MarkInFlight records that a worker picked the item up.
	MarkInFlight(ctx context.Context, id string) error

	// MarkCompleted persists the transcript bundle and flips the item to
	// completed. Idempotent with IsComplete: once this returns, IsComplete
	// reports true and future runs skip the item.
	MarkCompleted(ctx context.Context, id, jobID string, result json.RawMessage, artifacts Artifacts) error

	// MarkError records a terminal failure for the item. jobID may be empty
	// when submission itself failed.
	MarkError(ctx context.Context, id, jobID, msg string) error

	// IsComplete reports whether the item already finished successfully.
	IsComplete(id string) bool
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}

// writeAtomic writes data through a temp file and a rename in the same
// directory, so a crash mid-write never leaves a partial file behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
