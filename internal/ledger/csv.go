package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/karmi/pn-transcriptions/constants"
	"github.com/karmi/pn-transcriptions/internal/common"
	"github.com/karmi/pn-transcriptions/internal/entity"
)

// Tracking columns added to the input table when absent.
const (
	colFilename        = "filename"
	colTranscriptionID = "transcription_id"
	colStatus          = "status"
	colError           = "error"
)

// CSVLedger tracks state inside the input CSV itself: tracking columns are
// added when absent, every other column and the row order are preserved, and
// each update rewrites the whole table atomically. A single writer holds the
// lock for the duration of a rewrite. Transcript payloads live in per-item
// bundles next to the table's output directory.
type CSVLedger struct {
	path    string
	bundles *BundleStore
	logger  *slog.Logger

	mu      sync.Mutex
	header  []string
	rows    [][]string
	index   map[string]int // identifier -> rows position
	cols    map[string]int // column name -> header position
	entries map[string]entity.LedgerEntry
}

// NewCSVLedger tracks run state in the table at path and stores transcript
// bundles under bundleRoot.
func NewCSVLedger(path, bundleRoot string, logger *slog.Logger) (*CSVLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(bundleRoot, 0o755); err != nil {
		return nil, common.ConfigErrorf("create output dir %s: %v", bundleRoot, err)
	}
	return &CSVLedger{
		path:    path,
		bundles: NewBundleStore(bundleRoot, logger),
		logger:  logger,
		index:   map[string]int{},
		cols:    map[string]int{},
		entries: map[string]entity.LedgerEntry{},
	}, nil
}

// Load parses the table and derives per-identifier state from the tracking
// columns. An unreadable or unparsable table is fatal.
func (l *CSVLedger) Load(ctx context.Context) (map[string]entity.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, common.ConfigErrorf("read ledger csv %s: %v", l.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, common.ConfigErrorf("parse ledger csv %s: %v", l.path, err)
	}
	if len(records) == 0 {
		return nil, common.ConfigErrorf("ledger csv %s has no header row", l.path)
	}

	l.header = records[0]
	l.rows = records[1:]
	for i, name := range l.header {
		l.cols[strings.TrimSpace(name)] = i
	}
	if _, ok := l.cols[colFilename]; !ok {
		return nil, common.ConfigErrorf("ledger csv %s has no filename column", l.path)
	}
	for _, name := range []string{colTranscriptionID, colStatus, colError} {
		if _, ok := l.cols[name]; !ok {
			l.cols[name] = len(l.header)
			l.header = append(l.header, name)
		}
	}
	for i := range l.rows {
		for len(l.rows[i]) < len(l.header) {
			l.rows[i] = append(l.rows[i], "")
		}
	}

	for i, row := range l.rows {
		id := strings.TrimSpace(row[l.cols[colFilename]])
		if id == "" {
			continue
		}
		l.index[id] = i

		e := entity.LedgerEntry{
			Identifier:   id,
			JobID:        strings.TrimSpace(row[l.cols[colTranscriptionID]]),
			ErrorMessage: row[l.cols[colError]],
		}
		switch s := constants.EntryStatus(strings.TrimSpace(row[l.cols[colStatus]])); s {
		case "":
			e.Status = constants.StatusPending
		default:
			e.Status = s
		}
		if e.Completed() {
			result, err := l.bundles.LoadResult(id, e.JobID)
			if err != nil {
				l.logger.Warn("ledger.bundle.read_error", "identifier", id, "error", err)
			} else {
				e.Result = result
			}
		}
		l.entries[id] = e
	}

	out := make(map[string]entity.LedgerEntry, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out, nil
}

func (l *CSVLedger) MarkInFlight(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, err := l.row(id)
	if err != nil {
		return err
	}
	row[l.cols[colTranscriptionID]] = ""
	row[l.cols[colStatus]] = string(constants.StatusInFlight)
	row[l.cols[colError]] = ""
	if err := l.flushLocked(); err != nil {
		return err
	}
	l.entries[id] = entity.LedgerEntry{
		Identifier: id,
		Status:     constants.StatusInFlight,
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

func (l *CSVLedger) MarkCompleted(ctx context.Context, id, jobID string, result json.RawMessage, artifacts Artifacts) error {
	// Bundle first: the payload must be durable before the state flips.
	if _, err := l.bundles.Save(id, jobID, result, artifacts); err != nil {
		return fmt.Errorf("%w: %w", common.ErrLedgerWrite, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	row, err := l.row(id)
	if err != nil {
		return err
	}
	row[l.cols[colTranscriptionID]] = jobID
	row[l.cols[colStatus]] = string(constants.StatusCompleted)
	row[l.cols[colError]] = ""
	if err := l.flushLocked(); err != nil {
		return err
	}
	l.entries[id] = entity.LedgerEntry{
		Identifier: id,
		Status:     constants.StatusCompleted,
		JobID:      jobID,
		Result:     result,
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

func (l *CSVLedger) MarkError(ctx context.Context, id, jobID, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, err := l.row(id)
	if err != nil {
		return err
	}
	row[l.cols[colTranscriptionID]] = jobID
	row[l.cols[colStatus]] = string(constants.StatusError)
	row[l.cols[colError]] = truncateError(msg)
	if err := l.flushLocked(); err != nil {
		return err
	}
	l.entries[id] = entity.LedgerEntry{
		Identifier:   id,
		Status:       constants.StatusError,
		JobID:        jobID,
		ErrorMessage: truncateError(msg),
		UpdatedAt:    time.Now().UTC(),
	}
	return nil
}

func (l *CSVLedger) IsComplete(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[id].Completed()
}

func (l *CSVLedger) row(id string) ([]string, error) {
	i, ok := l.index[id]
	if !ok {
		return nil, fmt.Errorf("identifier %q not in csv table", id)
	}
	return l.rows[i], nil
}

// flushLocked rewrites the whole table through a temp file. Callers hold mu.
func (l *CSVLedger) flushLocked() error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(l.header); err != nil {
		return fmt.Errorf("%w: %w", common.ErrLedgerWrite, err)
	}
	for _, row := range l.rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("%w: %w", common.ErrLedgerWrite, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrLedgerWrite, err)
	}
	if err := writeAtomic(l.path, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: rewrite %s: %w", common.ErrLedgerWrite, l.path, err)
	}
	return nil
}

var _ Ledger = (*CSVLedger)(nil)
