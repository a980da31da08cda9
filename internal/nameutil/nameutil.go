// Package nameutil derives filesystem-safe names from work item identifiers.
// Ledger files and transcript bundle folders are named after identifiers, so
// the mapping has to be deterministic and collision-aware across platforms.
package nameutil

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxLength bounds the derived name so deep output trees stay within common
// path limits.
const maxLength = 100

var unsafePattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// asciiFold decomposes accented characters and drops anything that does not
// survive as plain ASCII, mirroring an NFKD → ascii-ignore fold.
var asciiFold = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

var (
	// ErrEmptyName indicates the identifier had no usable characters at all.
	ErrEmptyName = errors.New("name must contain at least one visible character")
	// ErrUnusableName indicates nothing survived normalization.
	ErrUnusableName = errors.New("name cannot be normalized; use a safer identifier")
)

// ToDirName converts an identifier (often a filename, key, or relative path)
// into a safe directory/file stem: base name without its extension, accents
// folded to ASCII, whitespace and symbol runs collapsed to "_", trimmed of
// leading/trailing "._-", capped at 100 characters.
func ToDirName(name string) (string, error) {
	filename := strings.TrimSpace(filepath.Base(strings.TrimSpace(name)))
	if name == "" || filename == "" || filename == "." || filename == string(filepath.Separator) {
		return "", ErrEmptyName
	}

	stem := strings.TrimSpace(strings.TrimSuffix(filename, filepath.Ext(filename)))
	candidate := stem
	if candidate == "" {
		candidate = filename
	}

	folded, _, err := transform.String(asciiFold, candidate)
	if err == nil {
		candidate = folded
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	candidate = unsafePattern.ReplaceAllString(candidate, "_")
	candidate = strings.Trim(candidate, "._-")

	if candidate == "" {
		return "", ErrUnusableName
	}
	if len(candidate) > maxLength {
		candidate = candidate[:maxLength]
	}
	return candidate, nil
}

// Key returns the case-insensitive collision key for an identifier, used to
// detect duplicates that would land on the same ledger slot.
func Key(name string) (string, error) {
	dir, err := ToDirName(name)
	if err != nil {
		return "", err
	}
	return strings.ToLower(dir), nil
}
