package main

import (
	"testing"
	"time"
)

func TestValidateRunFlags(t *testing.T) {
	tests := []struct {
		name       string
		workersSet bool
		workers    int
		offset     int
		limit      int
		timeout    time.Duration
		poll       time.Duration
		wantErr    bool
	}{
		{name: "defaults pass"},
		{name: "explicit workers", workersSet: true, workers: 3},
		{name: "window", offset: 10, limit: 5},
		{name: "explicit zero workers", workersSet: true, workers: 0, wantErr: true},
		{name: "negative workers", workersSet: true, workers: -2, wantErr: true},
		{name: "negative offset", offset: -1, wantErr: true},
		{name: "negative limit", limit: -5, wantErr: true},
		{name: "negative timeout", timeout: -time.Second, wantErr: true},
		{name: "negative poll interval", poll: -time.Second, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRunFlags(tt.workersSet, tt.workers, tt.offset, tt.limit, tt.timeout, tt.poll)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRunFlags = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunCommandRejectsBadFlagValues(t *testing.T) {
	for _, args := range [][]string{
		{"in.mp3", "--workers", "-1"},
		{"in.mp3", "--workers", "0"},
		{"in.mp3", "--limit", "-3"},
		{"in.mp3", "--offset", "-1"},
		{"in.mp3", "--timeout", "-5s"},
	} {
		if code := runCommand(args); code != exitFatal {
			t.Errorf("runCommand(%v) = %d, want %d", args, code, exitFatal)
		}
	}
}
