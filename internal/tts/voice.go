package tts

import (
	"github.com/example/go-kokoro-tts/internal/style"
)

// Voice describes one style in the loaded voices data.
type Voice struct {
	ID        string `json:"id"`
	Positions int    `json:"positions"`
}

// ListVoices returns the loaded styles sorted by name. It is empty when the
// voices data could not be read.
func ListVoices(t *style.Table) []Voice {
	names := t.Names()
	voices := make([]Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, Voice{ID: name, Positions: t.Positions(name)})
	}
	return voices
}
