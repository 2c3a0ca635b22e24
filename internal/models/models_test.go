package models

import (
	"strings"
	"testing"
)

func TestNewRecordIsComplete(t *testing.T) {
	r := NewRecord("H10011")

	if r.Identifier != "H10011" {
		t.Errorf("Expected identifier H10011, got %s", r.Identifier)
	}
	if r.Meta.SchemaVersion != SchemaVersion {
		t.Errorf("Expected schema version %d, got %d", SchemaVersion, r.Meta.SchemaVersion)
	}

	StringLeaves(r, func(path, value string) {
		if path == "identifier" {
			return
		}
		if value != Placeholder {
			t.Errorf("Expected placeholder at %s, got %q", path, value)
		}
	})

	if r.Media == nil || r.Compliance.Standards == nil || r.Visual.SecondaryColors == nil {
		t.Error("Expected list fields to be empty, not nil")
	}
	if r.Extra.Front == nil || r.Extra.Back == nil || r.Extra.Other == nil || r.Extra.RawResponse.Output == nil {
		t.Error("Expected map fields to be empty, not nil")
	}
}

func TestNormalize(t *testing.T) {
	r := NewRecord("X1")
	r.Item.Name = "   "
	r.Codes.UPC = ""
	r.Compliance.Warnings = []string{"", " Small parts ", "N/A"}
	r.Media = []MediaEntry{{Key: "k1"}}

	Normalize(r)

	if r.Item.Name != Placeholder {
		t.Errorf("Expected whitespace name to become placeholder, got %q", r.Item.Name)
	}
	if r.Codes.UPC != Placeholder {
		t.Errorf("Expected empty UPC to become placeholder, got %q", r.Codes.UPC)
	}
	if len(r.Compliance.Warnings) != 1 || r.Compliance.Warnings[0] != "Small parts" {
		t.Errorf("Expected compacted warnings, got %v", r.Compliance.Warnings)
	}
	if r.Media[0].Side != Placeholder {
		t.Errorf("Expected media side placeholder, got %q", r.Media[0].Side)
	}
}

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		in       string
		expected bool
	}{
		{"", true},
		{"  ", true},
		{Placeholder, true},
		{"J-IMPORTS", false},
	}
	for _, tt := range tests {
		if got := IsPlaceholder(tt.in); got != tt.expected {
			t.Errorf("IsPlaceholder(%q) = %v, expected %v", tt.in, got, tt.expected)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := NewRecord("X2")
	r.Compliance.Warnings = []string{"Choking hazard"}
	r.Extra.Front["summary"] = "red car"

	c := r.Clone()
	c.Compliance.Warnings[0] = "changed"
	c.Extra.Front["summary"] = "blue car"

	if r.Compliance.Warnings[0] != "Choking hazard" {
		t.Error("Clone shares warnings slice with original")
	}
	if r.Extra.Front["summary"] != "red car" {
		t.Error("Clone shares passthrough map with original")
	}
}

func TestStringLeavesPaths(t *testing.T) {
	r := NewRecord("X3")
	r.Media = append(r.Media, MediaEntry{Key: "a.jpg"})
	Normalize(r)

	var paths []string
	StringLeaves(r, func(path, _ string) { paths = append(paths, path) })

	joined := strings.Join(paths, " ")
	for _, want := range []string{"codes.upc", "item.series", "visual.primary_color.value", "media.0.key", "extra.raw_response.text"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected path %s in leaves", want)
		}
	}
}
