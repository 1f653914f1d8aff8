package domain

import (
	"reflect"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"src/a.py", "src/a.py"},
		{"./src/a.py", "src/a.py"},
		{"/src/a.py", "src/a.py"},
		{`src\pkg\a.go`, "src/pkg/a.go"},
		{"`src/a.py`", "src/a.py"},
		{` "src//b/../a.py" `, "src/a.py"},
		{".", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSnapshot_IndexAndLookup(t *testing.T) {
	s := NewSnapshot("/repo", []FileEntry{
		{Path: "./main.go", Content: "package main"},
		{Path: "internal/api/server.go", Content: "package api"},
		{Path: "main.go", Content: "duplicate"},
		{Path: "."},
	}, "tree", "")

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if want := []string{"main.go", "internal/api/server.go"}; !reflect.DeepEqual(s.Paths(), want) {
		t.Errorf("Paths() = %v, want %v", s.Paths(), want)
	}
	f, ok := s.Lookup("/main.go")
	if !ok || f.Content != "package main" {
		t.Errorf("Lookup kept %q, want first occurrence", f.Content)
	}
	if !s.Has(`internal\api\server.go`) {
		t.Error("Has should normalize separators")
	}

	sub := s.Subset([]string{"internal/api/server.go", "missing.go"})
	if len(sub) != 1 || sub[0].Path != "internal/api/server.go" {
		t.Errorf("Subset() = %+v", sub)
	}
}
