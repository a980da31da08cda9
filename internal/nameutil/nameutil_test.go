package nameutil

import (
	"strings"
	"testing"
)

func TestToDirName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "basic name", input: "audio.mp3", want: "audio"},
		{name: "strips directories", input: "../weird/audio.mp3", want: "audio"},
		{name: "unicode and spaces", input: "Žluťoučký kůň.mp3", want: "Zlutoucky_kun"},
		{name: "symbols are replaced", input: "foo*?bar.mp3", want: "foo_bar"},
		{name: "keeps digits dots dashes", input: "ep-012.final.mp3", want: "ep-012.final"},
		{name: "trims to max length", input: strings.Repeat("a", 200), want: strings.Repeat("a", 100)},
		{name: "rejects missing name", input: "", wantErr: true},
		{name: "rejects unusable name", input: "!!!", wantErr: true},
		{name: "rejects whitespace only", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDirName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ToDirName(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToDirName(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ToDirName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestKeyIsCaseInsensitive(t *testing.T) {
	a, err := Key("Episode One.mp3")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	b, err := Key("episode one.MP3")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
}
