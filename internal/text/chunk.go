package text

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMaxTokens leaves headroom under the model's 512-token context for
// padding and leading silence.
const DefaultMaxTokens = 500

// Phonemizer is the subset of phonemize.Phonemizer used by the planner.
type Phonemizer interface {
	Phonemize(ctx context.Context, text, lang string) (string, error)
}

// Tokenizer is the subset of tokenizer.Tokenizer used by the planner.
type Tokenizer interface {
	Encode(phonemes string) []int64
}

// Chunk is a sub-text whose token sequence fits the planner budget. A chunk
// made of a single word may exceed the budget; words are never split.
type Chunk struct {
	Text     string
	Phonemes string
	Tokens   []int64
}

// Oversized reports whether the chunk exceeds maxTokens.
func (c Chunk) Oversized(maxTokens int) bool {
	return len(c.Tokens) > maxTokens
}

// Planner splits text into chunks that each tokenize within a budget.
type Planner struct {
	phonemizer Phonemizer
	tokenizer  Tokenizer
	maxTokens  int
}

// NewPlanner returns a planner with the given token budget
// (DefaultMaxTokens when maxTokens <= 0).
func NewPlanner(p Phonemizer, tok Tokenizer, maxTokens int) *Planner {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Planner{phonemizer: p, tokenizer: tok, maxTokens: maxTokens}
}

// MaxTokens returns the planner's budget.
func (p *Planner) MaxTokens() int {
	return p.maxTokens
}

// Plan splits input into ordered chunks. Sentences are packed together while
// the combined text stays within budget; a sentence that alone exceeds the
// budget is packed word by word into chunks of its own. Empty input yields no
// chunks and makes no phonemizer calls.
func (p *Planner) Plan(ctx context.Context, input, lang string) ([]Chunk, error) {
	var chunks []Chunk
	var current Chunk

	for _, sentence := range SplitSentences(input) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		measured, err := p.measure(ctx, sentence, lang)
		if err != nil {
			return nil, err
		}

		if len(measured.Tokens) > p.maxTokens {
			// Close the pending group first so word order survives.
			if current.Text != "" {
				chunks = append(chunks, current)
				current = Chunk{}
			}
			words, err := p.packWords(ctx, sentence, lang)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, words...)
			continue
		}

		if current.Text == "" {
			current = measured
			continue
		}

		combined, err := p.measure(ctx, current.Text+" "+sentence, lang)
		if err != nil {
			return nil, err
		}
		if len(combined.Tokens) > p.maxTokens {
			chunks = append(chunks, current)
			current = measured
		} else {
			current = combined
		}
	}

	if current.Text != "" {
		chunks = append(chunks, current)
	}
	return chunks, nil
}

// packWords greedily groups whitespace-separated words of sentence.
func (p *Planner) packWords(ctx context.Context, sentence, lang string) ([]Chunk, error) {
	var out []Chunk
	var current Chunk

	for _, word := range strings.Fields(sentence) {
		candidate := word
		if current.Text != "" {
			candidate = current.Text + " " + word
		}
		measured, err := p.measure(ctx, candidate, lang)
		if err != nil {
			return nil, err
		}
		if len(measured.Tokens) <= p.maxTokens {
			current = measured
			continue
		}
		if current.Text != "" {
			out = append(out, current)
		}
		if candidate == word {
			current = measured
		} else if current, err = p.measure(ctx, word, lang); err != nil {
			return nil, err
		}
	}

	if current.Text != "" {
		out = append(out, current)
	}
	return out, nil
}

func (p *Planner) measure(ctx context.Context, text, lang string) (Chunk, error) {
	phonemes, err := p.phonemizer.Phonemize(ctx, text, lang)
	if err != nil {
		return Chunk{}, fmt.Errorf("measure chunk: %w", err)
	}
	return Chunk{
		Text:     text,
		Phonemes: phonemes,
		Tokens:   p.tokenizer.Encode(phonemes),
	}, nil
}

// SplitSentences splits text on '.', '?', '!' and ';'. Terminators are
// discarded, each non-empty sentence is trimmed and given a trailing '.'.
func SplitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '?' || r == '!' || r == ';'
	})

	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		s := strings.TrimSpace(part)
		if s == "" {
			continue
		}
		sentences = append(sentences, s+".")
	}
	return sentences
}
