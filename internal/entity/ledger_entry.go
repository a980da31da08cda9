package entity

import (
	"encoding/json"
	"time"

	"github.com/karmi/pn-transcriptions/constants"
)

// LedgerEntry represents the durable state of one work item.
type LedgerEntry struct {
	Identifier   string                `json:"identifier"`
	Status       constants.EntryStatus `json:"status"`
	JobID        string                `json:"transcription_id,omitempty"`
	ErrorMessage string                `json:"error,omitempty"`
	Result       json.RawMessage       `json:"result,omitempty"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Completed reports whether the entry finished successfully: the remote job
// identifier must be present and the status must be completed.
func (e LedgerEntry) Completed() bool {
	return e.JobID != "" && e.Status == constants.StatusCompleted
}
