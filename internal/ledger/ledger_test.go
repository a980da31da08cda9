package ledger

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/karmi/pn-transcriptions/constants"
	"github.com/karmi/pn-transcriptions/internal/common"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeText(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return payload.Text
}

func TestDirLedgerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	id := "Episode One.mp3"
	result := json.RawMessage(`{"text":"hello world","audio_duration":12}`)

	l1, err := NewDirLedger(dir, discard())
	if err != nil {
		t.Fatalf("NewDirLedger: %v", err)
	}
	if _, err := l1.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := l1.MarkInFlight(ctx, id); err != nil {
		t.Fatalf("MarkInFlight: %v", err)
	}
	if l1.IsComplete(id) {
		t.Error("in_flight item reported complete")
	}
	if err := l1.MarkCompleted(ctx, id, "job-1", result, Artifacts{VTT: "WEBVTT\n", SRT: "1\n"}); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if !l1.IsComplete(id) {
		t.Error("completed item not reported complete")
	}

	// The state file stays small; the payload lives in the bundle.
	entryData, err := os.ReadFile(filepath.Join(dir, "Episode_One.json"))
	if err != nil {
		t.Fatalf("read entry file: %v", err)
	}
	if strings.Contains(string(entryData), "hello world") {
		t.Error("entry file inlines the payload")
	}
	for _, name := range []string{"job-1.json", "job-1.vtt", "job-1.srt"} {
		if _, err := os.Stat(filepath.Join(dir, "Episode_One", name)); err != nil {
			t.Errorf("bundle file %s: %v", name, err)
		}
	}

	// A fresh ledger over the same directory sees the same outcome.
	l2, err := NewDirLedger(dir, discard())
	if err != nil {
		t.Fatalf("NewDirLedger: %v", err)
	}
	entries, err := l2.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, ok := entries[id]
	if !ok {
		t.Fatalf("entry for %q missing after reload: %v", id, entries)
	}
	if e.JobID != "job-1" || e.Status != constants.StatusCompleted {
		t.Errorf("entry = %+v", e)
	}
	if got := decodeText(t, e.Result); got != "hello world" {
		t.Errorf("payload text = %q, want %q", got, "hello world")
	}
	if !l2.IsComplete(id) {
		t.Error("reloaded ledger does not report item complete")
	}
}

func TestDirLedgerInFlightSurvivesAsRetryable(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l1, _ := NewDirLedger(dir, discard())
	if _, err := l1.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := l1.MarkInFlight(ctx, "a.mp3"); err != nil {
		t.Fatal(err)
	}

	l2, _ := NewDirLedger(dir, discard())
	entries, err := l2.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e := entries["a.mp3"]
	if e.Status != constants.StatusInFlight {
		t.Errorf("status = %q, want in_flight", e.Status)
	}
	if e.Completed() || l2.IsComplete("a.mp3") {
		t.Error("abandoned in_flight entry must stay retryable")
	}
}

func TestDirLedgerErrorMessageTruncated(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l1, _ := NewDirLedger(dir, discard())
	long := strings.Repeat("x", 800)
	if err := l1.MarkError(ctx, "a.mp3", "job-9", long); err != nil {
		t.Fatal(err)
	}

	l2, _ := NewDirLedger(dir, discard())
	entries, err := l2.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	e := entries["a.mp3"]
	if len(e.ErrorMessage) != maxErrorLen {
		t.Errorf("error message length = %d, want %d", len(e.ErrorMessage), maxErrorLen)
	}
	if e.Status != constants.StatusError || e.JobID != "job-9" {
		t.Errorf("entry = %+v", e)
	}
}

func TestDirLedgerLoadRejectsCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, _ := NewDirLedger(dir, discard())
	_, err := l.Load(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !common.IsConfigError(err) {
		t.Errorf("error %v not classified as fatal config error", err)
	}
}

func TestCSVLedgerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	path := filepath.Join(dir, "items.csv")
	table := "filename,url,notes\na.mp3,https://x/a,keep\nb.mp3,https://x/b,hold\n"
	if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}

	l1, err := NewCSVLedger(path, filepath.Join(dir, "out"), discard())
	if err != nil {
		t.Fatalf("NewCSVLedger: %v", err)
	}
	if _, err := l1.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := l1.MarkInFlight(ctx, "a.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := l1.MarkCompleted(ctx, "a.mp3", "1", json.RawMessage(`{"text":"hi"}`), Artifacts{}); err != nil {
		t.Fatal(err)
	}
	if err := l1.MarkError(ctx, "b.mp3", "", "connection timeout"); err != nil {
		t.Fatal(err)
	}

	// The rewritten table gains tracking columns and keeps everything else.
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(f).ReadAll()
	_ = f.Close()
	if err != nil {
		t.Fatalf("reparse table: %v", err)
	}
	header := records[0]
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, name := range []string{"filename", "url", "notes", "transcription_id", "status", "error"} {
		if _, ok := col[name]; !ok {
			t.Fatalf("column %q missing from header %v", name, header)
		}
	}
	if len(records) != 3 {
		t.Fatalf("row count = %d, want 3", len(records))
	}
	rowA, rowB := records[1], records[2]
	if rowA[col["filename"]] != "a.mp3" || rowB[col["filename"]] != "b.mp3" {
		t.Errorf("row order not preserved: %v", records)
	}
	if rowA[col["notes"]] != "keep" || rowB[col["notes"]] != "hold" {
		t.Errorf("extra column values lost: %v", records)
	}
	if rowA[col["transcription_id"]] != "1" || rowA[col["status"]] != "completed" {
		t.Errorf("row a tracking cells = %v", rowA)
	}
	if rowB[col["status"]] != "error" || rowB[col["error"]] != "connection timeout" {
		t.Errorf("row b tracking cells = %v", rowB)
	}

	// A fresh ledger over the same table sees the same outcomes.
	l2, err := NewCSVLedger(path, filepath.Join(dir, "out"), discard())
	if err != nil {
		t.Fatal(err)
	}
	entries, err := l2.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a := entries["a.mp3"]
	if a.JobID != "1" || !a.Completed() {
		t.Errorf("entry a = %+v", a)
	}
	if got := decodeText(t, a.Result); got != "hi" {
		t.Errorf("payload text = %q, want %q", got, "hi")
	}
	b := entries["b.mp3"]
	if b.Status != constants.StatusError || b.ErrorMessage != "connection timeout" {
		t.Errorf("entry b = %+v", b)
	}
	if !l2.IsComplete("a.mp3") || l2.IsComplete("b.mp3") {
		t.Error("IsComplete disagrees with table state")
	}
}

func TestCSVLedgerCompletedNeedsJobID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.csv")
	table := "filename,url,transcription_id,status,error\na.mp3,https://x/a,,completed,\n"
	if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := NewCSVLedger(path, filepath.Join(dir, "out"), discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.IsComplete("a.mp3") {
		t.Error("status=completed without a transcription id must not count as done")
	}
}

func TestCSVLedgerUnknownIdentifier(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.csv")
	if err := os.WriteFile(path, []byte("filename,url\na.mp3,https://x/a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := NewCSVLedger(path, filepath.Join(dir, "out"), discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkInFlight(context.Background(), "ghost.mp3"); err == nil {
		t.Fatal("expected an error for an identifier outside the table")
	}
}

func TestBundleStoreLoadResultMissingIsNil(t *testing.T) {
	b := NewBundleStore(t.TempDir(), discard())
	result, err := b.LoadResult("never-saved.mp3", "job-1")
	if err != nil {
		t.Fatalf("LoadResult: %v", err)
	}
	if result != nil {
		t.Errorf("result = %s, want nil", result)
	}
}
