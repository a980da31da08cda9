package constants

// EntryStatus is the canonical status for a work item in the ledger.
type EntryStatus string

// Stable values (store these exact strings in the ledger).
const (
	StatusPending   EntryStatus = "pending"   // enumerated, not yet picked up by a worker
	StatusInFlight  EntryStatus = "in_flight" // submitted to the transcription API
	StatusCompleted EntryStatus = "completed" // transcript persisted; re-runs skip it
	StatusError     EntryStatus = "error"     // terminal failure for this run
)

// Terminal reports whether the status admits no further transition
// without an explicit reset.
func (s EntryStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}
