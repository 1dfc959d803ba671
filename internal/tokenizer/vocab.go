package tokenizer

import "sync"

const (
	padSymbol   = "$"
	punctuation = ";:,.!?¡¿—…\"«»“” "
	letters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	lettersIPA  = "ɑɐɒæɓʙβɔɕçɗɖðʤəɘɚɛɜɝɞɟʄɡɠɢʛɦɧħɥʜɨɪʝɭɬɫɮʟɱɯɰŋɳɲɴøɵɸθœɶʘɹɺɾɻʀʁɽʂʃʈʧʉʊʋⱱʌɣɤʍχʎʏʑʐʒʔʡʕʢǀǁǂǃˈˌːˑʼʴʰʱʲʷˠˤ˞↓↑→↗↘'̩'ᵻ"
)

// Vocab is the immutable symbol table. It is safe for concurrent use.
type Vocab struct {
	ids     map[rune]int64
	symbols []rune
}

var (
	defaultOnce  sync.Once
	defaultVocab *Vocab
)

// Default returns the process-wide canonical vocabulary, built on first use.
func Default() *Vocab {
	defaultOnce.Do(func() {
		defaultVocab = NewVocab(padSymbol + punctuation + letters + lettersIPA)
	})
	return defaultVocab
}

// NewVocab builds a table from an ordered symbol string; a symbol's ID is its
// rune index. When a symbol repeats, the last occurrence wins.
func NewVocab(symbols string) *Vocab {
	runes := []rune(symbols)
	v := &Vocab{
		ids:     make(map[rune]int64, len(runes)),
		symbols: runes,
	}
	for i, r := range runes {
		v.ids[r] = int64(i)
	}
	return v
}

// Encode implements Tokenizer.
func (v *Vocab) Encode(phonemes string) []int64 {
	out := make([]int64, 0, len(phonemes))
	for _, r := range phonemes {
		if id, ok := v.ids[r]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Count returns len(v.Encode(phonemes)) without allocating.
func (v *Vocab) Count(phonemes string) int {
	n := 0
	for _, r := range phonemes {
		if _, ok := v.ids[r]; ok {
			n++
		}
	}
	return n
}

// ID looks up a single symbol.
func (v *Vocab) ID(r rune) (int64, bool) {
	id, ok := v.ids[r]
	return id, ok
}

// Size is the number of distinct symbols in the table.
func (v *Vocab) Size() int {
	return len(v.ids)
}
