// Package tokenizer maps phoneme strings to the integer token IDs consumed by
// the Kokoro acoustic model. The mapping is a fixed symbol table; characters
// outside the table are dropped rather than reported.
package tokenizer

// Tokenizer encodes phoneme text into model token IDs.
type Tokenizer interface {
	// Encode returns one ID per known symbol in phonemes, in input order.
	Encode(phonemes string) []int64
}

const (
	// PadID is the ID of the pad symbol, used to frame every model input.
	PadID int64 = 0
	// SilenceID is prepended to a chunk's tokens to produce leading silence.
	SilenceID int64 = 30
)
