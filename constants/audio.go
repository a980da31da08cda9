package constants

import "strings"

// AudioExtensions holds the file extensions eligible for transcription.
var AudioExtensions = map[string]struct{}{
	"mp3": {},
	"wav": {},
	"m4a": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAudioExt reports whether ext (with or without the leading dot) is a
// supported audio extension.
func IsAudioExt(ext string) bool {
	_, ok := AudioExtensions[NormalizeExt(ext)]
	return ok
}
