package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/karmi/pn-transcriptions/internal/ledger"
)

// Service produces an XLSX catalog of the ledger's entries, one row per
// identifier.
type Service struct {
	ledger ledger.Ledger
	logger *slog.Logger
}

func NewService(led ledger.Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: led, logger: logger}
}

// ExportXLSX returns an XLSX workbook (as bytes) cataloguing every ledger
// entry, ordered by identifier.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	entries, err := s.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	f := excelize.NewFile()
	const sheet = "Transcripts"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Identifier",
		"Status",
		"Transcription ID",
		"Audio Duration",
		"Text Excerpt",
		"Error",
		"Updated At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, id := range ids {
		e := entries[id]

		var payload struct {
			Text          string  `json:"text"`
			AudioDuration float64 `json:"audio_duration"`
		}
		if len(e.Result) > 0 {
			_ = json.Unmarshal(e.Result, &payload)
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, e.Identifier)
		write(2, string(e.Status))
		write(3, e.JobID)
		if payload.AudioDuration > 0 {
			write(4, formatSeconds(payload.AudioDuration))
		} else {
			write(4, "")
		}
		write(5, truncate(payload.Text, 140))
		write(6, truncate(e.ErrorMessage, 140))
		if !e.UpdatedAt.IsZero() {
			write(7, e.UpdatedAt.UTC().Format("2006-01-02 15:04:05"))
		} else {
			write(7, "")
		}

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 40) // identifier
	_ = f.SetColWidth(sheet, "B", "B", 12) // status
	_ = f.SetColWidth(sheet, "C", "C", 28) // transcription id
	_ = f.SetColWidth(sheet, "D", "D", 14) // duration
	_ = f.SetColWidth(sheet, "E", "E", 60) // excerpt
	_ = f.SetColWidth(sheet, "F", "F", 48) // error
	_ = f.SetColWidth(sheet, "G", "G", 20) // updated at

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(ids),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func formatSeconds(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
