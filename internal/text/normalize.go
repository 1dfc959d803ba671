package text

import (
	"errors"
	"strings"
	"unicode"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalize prepares request text for planning. Line endings become spaces,
// other control characters are dropped and surrounding whitespace is trimmed.
// Empty or whitespace-only input is rejected.
func Normalize(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)

	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyText
	}
	return s, nil
}

// Line is one non-empty input line and its zero-based position in the source.
type Line struct {
	Index int
	Text  string
}

// Lines splits s on LF, CRLF or bare CR and returns trimmed non-empty lines.
// Index counts every line, including skipped blank ones.
func Lines(s string) []Line {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var out []Line
	for i, raw := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(raw); t != "" {
			out = append(out, Line{Index: i, Text: t})
		}
	}
	return out
}
