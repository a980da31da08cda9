package source

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"strings"

	"github.com/karmi/pn-transcriptions/internal/common"
	"github.com/karmi/pn-transcriptions/internal/entity"
)

// CSVSource reads work items from a filename/url table. Rows with a blank
// filename or url are reported and skipped; a table where nothing survives
// is a fatal input error.
type CSVSource struct {
	path   string
	logger *slog.Logger
}

func NewCSV(path string, logger *slog.Logger) *CSVSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSource{path: path, logger: logger}
}

func (s *CSVSource) Enumerate(ctx context.Context) ([]entity.WorkItem, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, common.ConfigErrorf("cannot read input %s: %v", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, common.ConfigErrorf("parse csv %s: %v", s.path, err)
	}
	if len(records) == 0 {
		return nil, common.ConfigErrorf("csv %s has no header row", s.path)
	}

	fileCol, urlCol := -1, -1
	for i, name := range records[0] {
		switch strings.TrimSpace(name) {
		case "filename":
			fileCol = i
		case "url":
			urlCol = i
		}
	}
	if fileCol < 0 || urlCol < 0 {
		return nil, common.ConfigErrorf("csv %s must carry filename and url columns", s.path)
	}

	var items []entity.WorkItem
	malformed := 0
	for i, row := range records[1:] {
		name := field(row, fileCol)
		url := field(row, urlCol)
		if name == "" || url == "" {
			malformed++
			s.logger.Warn("source.csv.malformed_row", "path", s.path, "line", i+2)
			continue
		}
		items = append(items, entity.WorkItem{
			Identifier: name,
			Audio:      entity.AudioRef{Kind: entity.RefURL, URL: url},
		})
	}
	if len(items) == 0 && malformed > 0 {
		return nil, common.ConfigErrorf("csv %s has no usable rows (%d malformed)", s.path, malformed)
	}

	s.logger.Info("source.csv.ok", "path", s.path, "items", len(items), "malformed", malformed)
	return items, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
