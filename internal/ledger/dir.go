package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/karmi/pn-transcriptions/constants"
	"github.com/karmi/pn-transcriptions/internal/common"
	"github.com/karmi/pn-transcriptions/internal/entity"
	"github.com/karmi/pn-transcriptions/internal/nameutil"
)

// DirLedger keeps one <safe-id>.json state file per identifier at the root
// of the output directory, next to the <safe-id>/ transcript bundles. Renames
// make each per-identifier update atomic, so no write lock is needed beyond
// the in-memory view.
type DirLedger struct {
	dir     string
	bundles *BundleStore
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]entity.LedgerEntry
}

func NewDirLedger(dir string, logger *slog.Logger) (*DirLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, common.ConfigErrorf("create output dir %s: %v", dir, err)
	}
	return &DirLedger{
		dir:     dir,
		bundles: NewBundleStore(dir, logger),
		logger:  logger,
		entries: map[string]entity.LedgerEntry{},
	}, nil
}

// Load reads every entry file at the ledger root. A directory with no entry
// files is an empty ledger; an unreadable or corrupt entry file is fatal,
// since the run cannot safely decide what to skip.
func (l *DirLedger) Load(ctx context.Context) (map[string]entity.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(l.dir, "*.json"))
	if err != nil {
		return nil, common.ConfigErrorf("scan ledger dir %s: %v", l.dir, err)
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, common.ConfigErrorf("read ledger entry %s: %v", path, err)
		}
		var e entity.LedgerEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, common.ConfigErrorf("parse ledger entry %s: %v", path, err)
		}
		if e.Identifier == "" {
			return nil, common.ConfigErrorf("ledger entry %s carries no identifier", path)
		}
		if e.Completed() {
			result, err := l.bundles.LoadResult(e.Identifier, e.JobID)
			if err != nil {
				l.logger.Warn("ledger.bundle.read_error", "identifier", e.Identifier, "error", err)
			} else {
				e.Result = result
			}
		}
		l.entries[e.Identifier] = e
	}

	out := make(map[string]entity.LedgerEntry, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out, nil
}

func (l *DirLedger) MarkInFlight(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := entity.LedgerEntry{
		Identifier: id,
		Status:     constants.StatusInFlight,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := l.write(e); err != nil {
		return err
	}
	l.entries[id] = e
	return nil
}

func (l *DirLedger) MarkCompleted(ctx context.Context, id, jobID string, result json.RawMessage, artifacts Artifacts) error {
	// Bundle first: the payload must be durable before the state flips.
	if _, err := l.bundles.Save(id, jobID, result, artifacts); err != nil {
		return fmt.Errorf("%w: %w", common.ErrLedgerWrite, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := entity.LedgerEntry{
		Identifier: id,
		Status:     constants.StatusCompleted,
		JobID:      jobID,
		Result:     result,
		UpdatedAt:  time.Now().UTC(),
	}
	// The payload lives in the bundle; the entry file stays small.
	disk := e
	disk.Result = nil
	if err := l.write(disk); err != nil {
		return err
	}
	l.entries[id] = e
	return nil
}

func (l *DirLedger) MarkError(ctx context.Context, id, jobID, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := entity.LedgerEntry{
		Identifier:   id,
		Status:       constants.StatusError,
		JobID:        jobID,
		ErrorMessage: truncateError(msg),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := l.write(e); err != nil {
		return err
	}
	l.entries[id] = e
	return nil
}

func (l *DirLedger) IsComplete(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[id].Completed()
}

func (l *DirLedger) write(e entity.LedgerEntry) error {
	safe, err := nameutil.ToDirName(e.Identifier)
	if err != nil {
		return fmt.Errorf("%w: entry name for %s: %w", common.ErrLedgerWrite, e.Identifier, err)
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode entry for %s: %w", common.ErrLedgerWrite, e.Identifier, err)
	}
	if err := writeAtomic(filepath.Join(l.dir, safe+".json"), data); err != nil {
		return fmt.Errorf("%w: write entry for %s: %w", common.ErrLedgerWrite, e.Identifier, err)
	}
	return nil
}

var _ Ledger = (*DirLedger)(nil)
