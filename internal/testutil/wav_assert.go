package testutil

import (
	"testing"

	"github.com/example/go-kokoro-tts/internal/audio"
)

// AssertWAV decodes data, checks it has the wanted format and returns the
// interleaved samples.
func AssertWAV(tb testing.TB, data []byte, want audio.Format) []float32 {
	tb.Helper()

	samples, got, err := audio.DecodeWAV(data)
	if err != nil {
		tb.Fatalf("decode WAV: %v", err)
	}
	if got != want {
		tb.Fatalf("WAV format = %+v; want %+v", got, want)
	}
	if len(samples)%want.Channels != 0 {
		tb.Fatalf("WAV: %d samples do not divide into %d channels", len(samples), want.Channels)
	}
	return samples
}

// Mono returns the left channel of interleaved samples.
func Mono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, 0, len(samples)/channels)
	for i := 0; i < len(samples); i += channels {
		out = append(out, samples[i])
	}
	return out
}
