package objstore

import (
	"context"
	"time"
)

// Store is the object-storage capability used for bucket inputs. Audio bytes
// never flow through this process: listing finds the keys, presigning turns a
// key into a URL the transcription service fetches on its own.
type Store interface {
	// List returns every object key under prefix, in listing order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)

	// PresignGet returns a time-limited GET URL for one object.
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
