package source

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/karmi/pn-transcriptions/constants"
	"github.com/karmi/pn-transcriptions/internal/common"
	"github.com/karmi/pn-transcriptions/internal/entity"
)

// Local enumerates audio recordings from a single file or a directory walk.
type Local struct {
	root   string
	kind   Kind
	logger *slog.Logger
}

// NewLocal builds an enumerator for a path already classified by Detect as
// KindFile or KindDir.
func NewLocal(root string, kind Kind, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{root: root, kind: kind, logger: logger}
}

func (l *Local) Enumerate(ctx context.Context) ([]entity.WorkItem, error) {
	if l.kind == KindFile {
		return []entity.WorkItem{{
			Identifier: filepath.Base(l.root),
			Audio:      entity.AudioRef{Kind: entity.RefLocal, Path: l.root},
		}}, nil
	}

	var items []entity.WorkItem
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		// skip hidden dirs/files
		if isHidden(path) && path != l.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !constants.IsAudioExt(filepath.Ext(path)) {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		items = append(items, entity.WorkItem{
			Identifier: filepath.ToSlash(rel),
			Audio:      entity.AudioRef{Kind: entity.RefLocal, Path: path},
		})
		return nil
	})
	if err != nil {
		return nil, common.ConfigErrorf("walk %s: %v", l.root, err)
	}

	l.logger.Info("source.local.ok", "root", l.root, "items", len(items))
	return items, nil
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
