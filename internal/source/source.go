// Package source enumerates the audio recordings a run will process. All
// enumeration happens up front, before anything is submitted, so a run
// operates on a fixed, ordered work list.
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/karmi/pn-transcriptions/constants"
	"github.com/karmi/pn-transcriptions/internal/common"
	"github.com/karmi/pn-transcriptions/internal/entity"
)

// Kind classifies an input locator.
type Kind string

const (
	KindFile   Kind = "file"
	KindDir    Kind = "dir"
	KindRemote Kind = "remote"
	KindCSV    Kind = "csv"
)

// RemoteScheme prefixes bucket locators: remote://bucket/prefix.
const RemoteScheme = "remote://"

// Enumerator produces the full work list for one input locator.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]entity.WorkItem, error)
}

// Detect classifies the input locator. Anything unreadable or unsupported is
// a fatal configuration error.
func Detect(input string) (Kind, error) {
	if strings.HasPrefix(input, RemoteScheme) {
		return KindRemote, nil
	}
	info, err := os.Stat(input)
	if err != nil {
		return "", common.ConfigErrorf("cannot read input %s: %v", input, err)
	}
	if info.IsDir() {
		return KindDir, nil
	}
	ext := filepath.Ext(input)
	if strings.EqualFold(ext, ".csv") {
		return KindCSV, nil
	}
	if constants.IsAudioExt(ext) {
		return KindFile, nil
	}
	return "", common.ConfigErrorf("unsupported input %s: expected a directory, a csv, an audio file or a %sbucket/prefix locator", input, RemoteScheme)
}

// ParseRemote splits remote://bucket/prefix into bucket and prefix. The
// bucket segment may be empty when the caller has a configured default.
func ParseRemote(input string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(input, RemoteScheme)
	if rest == "" {
		return "", "", common.ConfigErrorf("remote locator %s names no bucket or prefix", input)
	}
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}
