package mode

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		descriptor string
		teamSize   int
		capacity   int
	}{
		{"1v1", 1, 2},
		{"2v2", 2, 4},
		{"3v3", 3, 6},
		{"4v4", 4, 8},
	}
	for _, tt := range tests {
		m, err := Parse(tt.descriptor)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.descriptor, err)
			continue
		}
		if m.TeamSize != tt.teamSize {
			t.Errorf("Parse(%q): team size %d, want %d", tt.descriptor, m.TeamSize, tt.teamSize)
		}
		if m.Capacity() != tt.capacity {
			t.Errorf("Parse(%q): capacity %d, want %d", tt.descriptor, m.Capacity(), tt.capacity)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"v",
		"2v",
		"v2",
		"2x2",
		"10v10",
		"0v0",
		"2V2",
		"duo",
	}
	for _, descriptor := range tests {
		if _, err := Parse(descriptor); err == nil {
			t.Errorf("expected error for descriptor %q", descriptor)
		}
	}
}

func TestParse_UnevenTeams(t *testing.T) {
	_, err := Parse("2v3")
	if !errors.Is(err, ErrUnevenTeams) {
		t.Errorf("expected ErrUnevenTeams, got %v", err)
	}
}

func TestParse_OversizedTeams(t *testing.T) {
	_, err := Parse("5v5")
	if !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}
