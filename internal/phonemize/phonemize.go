// Package phonemize converts raw text into IPA phoneme strings.
package phonemize

import (
	"context"
	"fmt"
)

// Phonemizer turns text in a given language into a phoneme string.
type Phonemizer interface {
	Phonemize(ctx context.Context, text, lang string) (string, error)
}

// Func adapts a plain function to Phonemizer.
type Func func(ctx context.Context, text, lang string) (string, error)

// Phonemize implements Phonemizer.
func (f Func) Phonemize(ctx context.Context, text, lang string) (string, error) {
	return f(ctx, text, lang)
}

// Error reports a phonemizer failure for a particular text and language.
type Error struct {
	Lang string
	Text string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("phonemize %q (lang %s): %v", truncate(e.Text, 48), e.Lang, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
