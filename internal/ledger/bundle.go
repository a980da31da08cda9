package ledger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/karmi/pn-transcriptions/internal/common"
	"github.com/karmi/pn-transcriptions/internal/nameutil"
)

// BundleStore writes the per-item transcript bundle: a folder named after the
// normalized identifier holding the full payload plus subtitle exports.
type BundleStore struct {
	root   string
	logger *slog.Logger
}

func NewBundleStore(root string, logger *slog.Logger) *BundleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BundleStore{root: root, logger: logger}
}

// Save writes <root>/<safe-id>/<job_id>.json (indented payload) and one file
// per subtitle format, each atomically. Returns the bundle directory.
func (b *BundleStore) Save(id, jobID string, result json.RawMessage, artifacts Artifacts) (string, error) {
	safe, err := nameutil.ToDirName(id)
	if err != nil {
		return "", common.WrapError(err, "bundle name for "+id)
	}
	dir := filepath.Join(b.root, safe)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", common.WrapError(err, "create bundle dir")
	}

	payload := []byte(result)
	var buf bytes.Buffer
	if json.Indent(&buf, payload, "", "  ") == nil {
		payload = buf.Bytes()
	}
	if err := writeAtomic(filepath.Join(dir, jobID+".json"), payload); err != nil {
		return "", common.WrapError(err, "write transcript payload")
	}
	if artifacts.VTT != "" {
		if err := writeAtomic(filepath.Join(dir, jobID+".vtt"), []byte(artifacts.VTT)); err != nil {
			return "", common.WrapError(err, "write vtt subtitles")
		}
	}
	if artifacts.SRT != "" {
		if err := writeAtomic(filepath.Join(dir, jobID+".srt"), []byte(artifacts.SRT)); err != nil {
			return "", common.WrapError(err, "write srt subtitles")
		}
	}

	b.logger.Info("ledger.bundle.ok", "identifier", id, "job_id", jobID, "dir", dir)
	return dir, nil
}

// LoadResult reads a stored transcript payload back. A missing bundle yields
// a nil payload, not an error; completed state lives in the ledger record,
// not in bundle existence.
func (b *BundleStore) LoadResult(id, jobID string) (json.RawMessage, error) {
	safe, err := nameutil.ToDirName(id)
	if err != nil {
		return nil, common.WrapError(err, "bundle name for "+id)
	}
	data, err := os.ReadFile(filepath.Join(b.root, safe, jobID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, common.WrapError(err, "read transcript payload")
	}
	return data, nil
}
