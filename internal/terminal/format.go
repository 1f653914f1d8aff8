package terminal

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxReportWidth caps the final report on wide terminals.
const MaxReportWidth = 90

// FormatDuration renders 4.2s, 3m 7.5s or 1h 2m.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		mins := int(d / time.Minute)
		return fmt.Sprintf("%dm %.1fs", mins, (d - time.Duration(mins)*time.Minute).Seconds())
	default:
		hours := int(d / time.Hour)
		return fmt.Sprintf("%dh %dm", hours, int((d-time.Duration(hours)*time.Hour)/time.Minute))
	}
}

// Ruler returns a dimmed horizontal rule.
func Ruler(width int, char string) string {
	return Color(Dim) + strings.Repeat(char, width) + Color(Reset)
}

// WrapText wraps text at width runes, prefixing every line with indent.
// Words longer than the line are kept whole.
func WrapText(text string, width int, indent string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	pad := utf8.RuneCountInString(indent)
	if width <= pad {
		return indent + strings.Join(words, " ")
	}

	var b strings.Builder
	b.WriteString(indent)
	col := pad
	for i, word := range words {
		n := utf8.RuneCountInString(word)
		switch {
		case i == 0:
		case col+1+n > width:
			b.WriteString("\n" + indent)
			col = pad
		default:
			b.WriteByte(' ')
			col++
		}
		b.WriteString(word)
		col += n
	}
	return b.String()
}

// ReportWidth is the terminal width capped at MaxReportWidth.
func ReportWidth() int {
	return min(Width(), MaxReportWidth)
}
