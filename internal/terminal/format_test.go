package terminal

import (
	"strings"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0.0s"},
		{4200 * time.Millisecond, "4.2s"},
		{3*time.Minute + 7500*time.Millisecond, "3m 7.5s"},
		{time.Hour + 2*time.Minute + 30*time.Second, "1h 2m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRuler(t *testing.T) {
	plainText(t)
	if got := Ruler(4, "─"); got != "────" {
		t.Errorf("Ruler = %q", got)
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		width  int
		indent string
		want   string
	}{
		{"empty", "   ", 20, "  ", ""},
		{"fits", "one two", 20, "", "one two"},
		{"wraps", "alpha beta gamma", 12, "  ", "  alpha beta\n  gamma"},
		{"long word kept whole", "supercalifragilistic ok", 8, "", "supercalifragilistic\nok"},
		{"width below indent", "a b", 2, "    ", "    a b"},
		{"counts runes", "ééé ééé", 7, "", "ééé ééé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapText(tt.text, tt.width, tt.indent); got != tt.want {
				t.Errorf("WrapText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapText_NoLineExceedsWidth(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapText(text, 30, "   "), "\n") {
		if n := len([]rune(line)); n > 30 {
			t.Errorf("line %q has %d runes", line, n)
		}
	}
}
