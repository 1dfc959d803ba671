package text

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
)

// runeTokenizer emits one token per rune.
type runeTokenizer struct{}

func (runeTokenizer) Encode(s string) []int64 {
	out := make([]int64, 0, len(s))
	for _, r := range s {
		out = append(out, int64(r))
	}
	return out
}

type identityPhonemizer struct {
	calls atomic.Int32
}

func (p *identityPhonemizer) Phonemize(_ context.Context, text, _ string) (string, error) {
	p.calls.Add(1)
	return text, nil
}

func chunkTexts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxTokens int
		want      []string
	}{
		{
			name:      "sentences packed under budget",
			text:      "Hello world. How are you?",
			maxTokens: 500,
			want:      []string{"Hello world. How are you."},
		},
		{
			name:      "sentences split when combined exceeds budget",
			text:      "Hello world. How are you?",
			maxTokens: 12,
			want:      []string{"Hello world.", "How are you."},
		},
		{
			name:      "semicolon and exclamation terminate sentences",
			text:      "One; two! three",
			maxTokens: 5,
			want:      []string{"One.", "two.", "three."},
		},
		{
			name:      "long sentence falls back to words",
			text:      "alpha beta gamma delta",
			maxTokens: 10,
			want:      []string{"alpha beta", "gamma", "delta."},
		},
		{
			name:      "single word longer than budget is kept whole",
			text:      "abcdefgh",
			maxTokens: 3,
			want:      []string{"abcdefgh."},
		},
		{
			name:      "word fallback flushes pending sentence group first",
			text:      "Hi. alpha beta gamma delta. Bye.",
			maxTokens: 10,
			want:      []string{"Hi.", "alpha beta", "gamma", "delta.", "Bye."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlanner(&identityPhonemizer{}, runeTokenizer{}, tt.maxTokens)
			chunks, err := p.Plan(context.Background(), tt.text, "en-us")
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if got := chunkTexts(chunks); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Plan(%q) = %q; want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestPlan_PreservesWordOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	vocab := []string{"a", "bb", "ccc", "dddd", "eeeeeeeeeeee", "f.", "g?", "h!", "i;"}
	strip := func(s string) []string {
		return strings.Fields(strings.Map(func(r rune) rune {
			if strings.ContainsRune(".?!;", r) {
				return ' '
			}
			return r
		}, s))
	}

	for i := range 50 {
		words := make([]string, 1+rng.IntN(40))
		for j := range words {
			words[j] = vocab[rng.IntN(len(vocab))]
		}
		input := strings.Join(words, " ")
		budget := 4 + rng.IntN(20)

		chunks, err := NewPlanner(&identityPhonemizer{}, runeTokenizer{}, budget).Plan(context.Background(), input, "en-us")
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		var got []string
		for _, c := range chunks {
			got = append(got, strip(c.Text)...)
			if c.Oversized(budget) && len(strings.Fields(c.Text)) != 1 {
				t.Fatalf("case %d: multi-word chunk %q exceeds budget %d", i, c.Text, budget)
			}
		}
		if want := strip(input); !reflect.DeepEqual(got, want) {
			t.Fatalf("case %d: words %q; want %q", i, got, want)
		}
	}
}

func TestPlan_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "...", " ?! ; "} {
		ph := &identityPhonemizer{}
		chunks, err := NewPlanner(ph, runeTokenizer{}, 0).Plan(context.Background(), in, "en-us")
		if err != nil {
			t.Fatalf("Plan(%q): %v", in, err)
		}
		if len(chunks) != 0 {
			t.Fatalf("Plan(%q) = %d chunks; want 0", in, len(chunks))
		}
		if ph.calls.Load() != 0 {
			t.Fatalf("Plan(%q) phonemized %d times; want 0", in, ph.calls.Load())
		}
	}
}

func TestPlan_TokensMatchChunkText(t *testing.T) {
	upper := phonemizerFunc(func(_ context.Context, text, _ string) (string, error) {
		return strings.ToUpper(text), nil
	})
	p := NewPlanner(upper, runeTokenizer{}, 8)

	chunks, err := p.Plan(context.Background(), "ab cd. efgh ijkl mnop.", "en-us")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	for _, c := range chunks {
		if c.Phonemes != strings.ToUpper(c.Text) {
			t.Fatalf("chunk %q phonemes %q", c.Text, c.Phonemes)
		}
		if want := (runeTokenizer{}).Encode(c.Phonemes); !reflect.DeepEqual(c.Tokens, want) {
			t.Fatalf("chunk %q tokens %v; want %v", c.Text, c.Tokens, want)
		}
		if c.Oversized(p.MaxTokens()) {
			t.Fatalf("chunk %q oversized (%d tokens)", c.Text, len(c.Tokens))
		}
	}
}

func TestPlan_PassesLanguage(t *testing.T) {
	var seen atomic.Value
	ph := phonemizerFunc(func(_ context.Context, text, lang string) (string, error) {
		seen.Store(lang)
		return text, nil
	})
	if _, err := NewPlanner(ph, runeTokenizer{}, 0).Plan(context.Background(), "Bonjour.", "fr-fr"); err != nil {
		t.Fatal(err)
	}
	if seen.Load() != "fr-fr" {
		t.Fatalf("phonemizer saw lang %v; want fr-fr", seen.Load())
	}
}

func TestPlan_PhonemizerError(t *testing.T) {
	boom := errors.New("boom")
	ph := phonemizerFunc(func(context.Context, string, string) (string, error) {
		return "", boom
	})
	_, err := NewPlanner(ph, runeTokenizer{}, 0).Plan(context.Background(), "Hello.", "en-us")
	if !errors.Is(err, boom) {
		t.Fatalf("Plan error = %v; want boom", err)
	}
}

func TestPlan_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPlanner(&identityPhonemizer{}, runeTokenizer{}, 0).Plan(ctx, "Hello.", "en-us")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Plan error = %v; want context.Canceled", err)
	}
}

func TestNewPlanner_DefaultBudget(t *testing.T) {
	if got := NewPlanner(&identityPhonemizer{}, runeTokenizer{}, -1).MaxTokens(); got != DefaultMaxTokens {
		t.Fatalf("MaxTokens = %d; want %d", got, DefaultMaxTokens)
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a; b! c? d.", []string{"a.", "b.", "c.", "d."}},
		{"no terminator", []string{"no terminator."}},
		{"  spaced  .  out  ", []string{"spaced.", "out."}},
		{"3.14", []string{"3.", "14."}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := SplitSentences(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitSentences(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

type phonemizerFunc func(ctx context.Context, text, lang string) (string, error)

func (f phonemizerFunc) Phonemize(ctx context.Context, text, lang string) (string, error) {
	return f(ctx, text, lang)
}
