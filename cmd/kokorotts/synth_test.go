package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/testutil"
	"github.com/example/go-kokoro-tts/internal/tokenizer"
)

// echoSamples is what the echo engine returns for text phonemized as itself.
func echoSamples(text string) []float32 {
	ids := tokenizer.Default().Encode(text)
	out := make([]float32, len(ids))
	for i, id := range ids {
		out[i] = float32(id)
	}
	return out
}

func TestTextCmd_WritesStereoWAV(t *testing.T) {
	env := newCLIEnv(t)
	out := filepath.Join(env.dir, "tmp", "output.wav")

	stdout, _, err := env.run(t, "", "text", "Hello world.", "-o", out)
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	for _, want := range []string{"Audio saved to", "Time taken:", "Words per second:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	samples := testutil.AssertWAV(t, data, audio.Format{SampleRate: audio.SampleRate, Channels: 2, SampleFormat: audio.F32})
	left := testutil.Mono(samples, 2)
	if want := echoSamples("Hello world."); !slices.Equal(left, want) {
		t.Fatalf("left channel = %v; want %v", left, want)
	}
	for i := 0; i < len(samples); i += 2 {
		if samples[i] != samples[i+1] {
			t.Fatalf("zero phase shift should duplicate channels; frame %d = %v/%v", i/2, samples[i], samples[i+1])
		}
	}

	calls := env.engine.Calls()
	if len(calls) != 1 || calls[0].Style[0] != 1 || calls[0].Speed != 1 {
		t.Fatalf("engine calls = %+v", calls)
	}
	if !env.engine.Closed() {
		t.Error("engine should be closed when the command ends")
	}
}

func TestTextCmd_MonoS16(t *testing.T) {
	env := newCLIEnv(t)
	out := filepath.Join(env.dir, "mono.wav")

	if _, _, err := env.run(t, "", "--mono", "--sample-format", "s16", "text", "Hi.", "-o", out); err != nil {
		t.Fatalf("text: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	samples := testutil.AssertWAV(t, data, audio.Format{SampleRate: audio.SampleRate, Channels: 1, SampleFormat: audio.S16})
	if len(samples) != len(echoSamples("Hi.")) {
		t.Fatalf("got %d samples; want %d", len(samples), len(echoSamples("Hi.")))
	}
}

func TestTextCmd_FailureWritesNothing(t *testing.T) {
	env := newCLIEnv(t)
	out := filepath.Join(env.dir, "never.wav")

	_, _, err := env.run(t, "", "--style", "nobody", "text", "Hello.", "-o", out)
	if err == nil {
		t.Fatal("want error for unknown style")
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("output written despite failure: %v", statErr)
	}
	if len(env.engine.Calls()) != 0 {
		t.Fatal("style errors must abort before inference")
	}
}

func TestTextCmd_InitialSilenceAndSpeed(t *testing.T) {
	env := newCLIEnv(t)
	out := filepath.Join(env.dir, "s.wav")

	if _, _, err := env.run(t, "", "--initial-silence", "2", "--speed", "1.5", "text", "Hi.", "-o", out); err != nil {
		t.Fatalf("text: %v", err)
	}
	calls := env.engine.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if calls[0].Speed != 1.5 {
		t.Errorf("speed = %v; want 1.5", calls[0].Speed)
	}
	if calls[0].Tokens[0] != tokenizer.SilenceID || calls[0].Tokens[1] != tokenizer.SilenceID {
		t.Errorf("tokens %v should start with two silence tokens", calls[0].Tokens)
	}
}

func TestFileCmd_OneWAVPerLine(t *testing.T) {
	env := newCLIEnv(t)
	input := filepath.Join(env.dir, "lines.txt")
	if err := os.WriteFile(input, []byte("First line.\n\n  Third line.  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	format := filepath.Join(env.dir, "out_{line}.wav")

	if _, _, err := env.run(t, "", "--mono", "file", input, "-o", format); err != nil {
		t.Fatalf("file: %v", err)
	}

	for idx, text := range map[string]string{"0": "First line.", "2": "Third line."} {
		data, err := os.ReadFile(filepath.Join(env.dir, "out_"+idx+".wav"))
		if err != nil {
			t.Fatalf("line %s: %v", idx, err)
		}
		got := testutil.AssertWAV(t, data, audio.Format{SampleRate: audio.SampleRate, Channels: 1, SampleFormat: audio.F32})
		if !slices.Equal(got, echoSamples(text)) {
			t.Errorf("line %s samples mismatch", idx)
		}
	}
	if _, err := os.Stat(filepath.Join(env.dir, "out_1.wav")); !os.IsNotExist(err) {
		t.Error("blank line must not produce a file")
	}
}

func TestFileCmd_MissingInput(t *testing.T) {
	env := newCLIEnv(t)
	if _, _, err := env.run(t, "", "file", filepath.Join(env.dir, "absent.txt")); err == nil {
		t.Fatal("want error for missing input file")
	}
}

func TestStreamCmd_HeaderThenOneBlockPerLine(t *testing.T) {
	env := newCLIEnv(t)

	lines := []string{"One.", "Two two.", "Three three three."}
	stdout, stderr, err := env.run(t, strings.Join(lines, "\n")+"\n\n", "stream")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var want []float32
	for _, l := range lines {
		want = append(want, echoSamples(l)...)
	}
	if len(stdout) != 44+4*len(want) {
		t.Fatalf("stdout has %d bytes; want header + %d samples", len(stdout), len(want))
	}
	if !strings.HasPrefix(stdout, "RIFF") {
		t.Fatal("stream must start with a WAV header")
	}
	if got := strings.Count(stderr, "Audio written to stdout"); got != 3 {
		t.Fatalf("%d blocks reported; want 3", got)
	}
}

func TestStreamCmd_FailingLineContinues(t *testing.T) {
	env := newCLIEnv(t)
	zID, _ := tokenizer.Default().ID('Z')
	env.engine.Fail = func(tokens []int64) error {
		if slices.Contains(tokens, zID) {
			return errors.New("engine rejected chunk")
		}
		return nil
	}

	stdout, stderr, err := env.run(t, "Good.\nZap.\nFine.\n", "stream")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !strings.Contains(stderr, "Error processing line") {
		t.Fatalf("stderr should report the failing line:\n%s", stderr)
	}
	want := len(echoSamples("Good.")) + len(echoSamples("Fine."))
	if len(stdout) != 44+4*want {
		t.Fatalf("stdout has %d bytes; want %d", len(stdout), 44+4*want)
	}
}
