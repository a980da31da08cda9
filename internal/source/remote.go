package source

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/karmi/pn-transcriptions/constants"
	"github.com/karmi/pn-transcriptions/internal/entity"
	"github.com/karmi/pn-transcriptions/internal/objstore"
)

// Remote enumerates audio objects under a bucket prefix. Keys are presigned
// later, one by one, as workers pick the items up.
type Remote struct {
	store  objstore.Store
	bucket string
	prefix string
	logger *slog.Logger
}

func NewRemote(store objstore.Store, bucket, prefix string, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{store: store, bucket: bucket, prefix: prefix, logger: logger}
}

func (r *Remote) Enumerate(ctx context.Context) ([]entity.WorkItem, error) {
	keys, err := r.store.List(ctx, r.bucket, r.prefix)
	if err != nil {
		return nil, err
	}

	var items []entity.WorkItem
	for _, key := range keys {
		// folder placeholders
		if strings.HasSuffix(key, "/") {
			continue
		}
		if !constants.IsAudioExt(path.Ext(key)) {
			continue
		}
		items = append(items, entity.WorkItem{
			Identifier: key,
			Audio:      entity.AudioRef{Kind: entity.RefObject, Bucket: r.bucket, Key: key},
		})
	}

	r.logger.Info("source.remote.ok",
		"bucket", r.bucket,
		"prefix", r.prefix,
		"items", len(items),
	)
	return items, nil
}
