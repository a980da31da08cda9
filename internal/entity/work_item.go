package entity

// RefKind tells the worker how to turn an audio reference into a URL the
// transcription service can fetch.
type RefKind string

const (
	RefLocal  RefKind = "local"  // file on disk, uploaded before submission
	RefURL    RefKind = "url"    // ready-to-use audio URL
	RefObject RefKind = "object" // object-store key, presigned before submission
)

// AudioRef locates one audio recording.
type AudioRef struct {
	Kind   RefKind `json:"kind"`
	Path   string  `json:"path,omitempty"`
	URL    string  `json:"url,omitempty"`
	Bucket string  `json:"bucket,omitempty"`
	Key    string  `json:"key,omitempty"`
}

// WorkItem represents one recording queued for transcription.
type WorkItem struct {
	Identifier string   `json:"identifier"`
	Audio      AudioRef `json:"audio"`
}
