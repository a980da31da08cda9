package export

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/karmi/pn-transcriptions/internal/ledger"
)

func TestExportXLSXCataloguesLedger(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	led, err := ledger.NewDirLedger(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	result := json.RawMessage(`{"text":"a longer transcript body","audio_duration":61.4}`)
	if err := led.MarkCompleted(ctx, "a.mp3", "job-1", result, ledger.Artifacts{}); err != nil {
		t.Fatal(err)
	}
	if err := led.MarkError(ctx, "b.mp3", "job-2", "download failed"); err != nil {
		t.Fatal(err)
	}

	data, err := NewService(led, logger).ExportXLSX(ctx)
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Transcripts")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("row count = %d, want header + 2 entries", len(rows))
	}
	if rows[0][0] != "Identifier" || rows[0][2] != "Transcription ID" {
		t.Errorf("header = %v", rows[0])
	}

	rowA := rows[1]
	if rowA[0] != "a.mp3" || rowA[1] != "completed" || rowA[2] != "job-1" {
		t.Errorf("row a = %v", rowA)
	}
	if rowA[3] != "1m1s" {
		t.Errorf("duration cell = %q, want 1m1s", rowA[3])
	}
	if !strings.Contains(rowA[4], "longer transcript") {
		t.Errorf("excerpt cell = %q", rowA[4])
	}

	rowB := rows[2]
	if rowB[0] != "b.mp3" || rowB[1] != "error" || rowB[5] != "download failed" {
		t.Errorf("row b = %v", rowB)
	}
}

func TestTruncateShortensLongText(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := truncate(long, 140)
	if len(got) > 140+2 {
		t.Errorf("truncate kept %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated text misses ellipsis: %q", got[130:])
	}
}
