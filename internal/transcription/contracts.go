package transcription

import (
	"context"
	"encoding/json"
	"io"
)

// JobState is the remote lifecycle state of a transcription job.
type JobState string

const (
	StateQueued     JobState = "queued"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateError      JobState = "error"
)

// Terminal reports whether the remote job will not change state anymore.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// JobStatus is one observation of a remote transcription job.
type JobStatus struct {
	ID    string
	State JobState
	Error string // remote failure detail, set when State == StateError
}

// SubtitleFormat selects a subtitle export flavor.
type SubtitleFormat string

const (
	SubtitleVTT SubtitleFormat = "vtt"
	SubtitleSRT SubtitleFormat = "srt"
)

// Transcriber is the interface the batch pipeline depends on.
type Transcriber interface {
	// Submit queues a transcription job for a fetchable audio URL and
	// returns the remote job identifier.
	Submit(ctx context.Context, audioURL string) (string, error)

	// Status fetches the current state of a previously submitted job.
	Status(ctx context.Context, jobID string) (JobStatus, error)

	// Result fetches the full transcript payload of a completed job.
	Result(ctx context.Context, jobID string) (json.RawMessage, error)

	// Upload streams local audio bytes to the provider and returns a URL
	// usable with Submit.
	Upload(ctx context.Context, r io.Reader) (string, error)

	// Subtitles exports a completed transcript in the given subtitle format.
	Subtitles(ctx context.Context, jobID string, format SubtitleFormat) (string, error)
}
