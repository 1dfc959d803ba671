package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/metrics"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/server"
	"github.com/example/go-kokoro-tts/internal/style"
	"github.com/example/go-kokoro-tts/internal/testutil"
	"github.com/example/go-kokoro-tts/internal/tts"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// stubSynthesizer implements server.Synthesizer for tests.
type stubSynthesizer struct {
	samples []float32
	chunks  [][]float32
	err     error
	got     tts.Request
}

func (s *stubSynthesizer) Synthesize(_ context.Context, req tts.Request) ([]float32, error) {
	s.got = req
	return s.samples, s.err
}

func (s *stubSynthesizer) SynthesizeStream(ctx context.Context, req tts.Request, out chan<- tts.PCMChunk) error {
	defer close(out)
	s.got = req
	for i, c := range s.chunks {
		select {
		case out <- tts.PCMChunk{ChunkIndex: i, Samples: c, Final: i == len(s.chunks)-1}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

// stubVoiceLister implements server.VoiceLister for tests.
type stubVoiceLister struct {
	voices []tts.Voice
}

func (v *stubVoiceLister) ListVoices() []tts.Voice {
	return v.voices
}

func newTestHandler(synth server.Synthesizer, opts ...server.Option) http.Handler {
	opts = append([]server.Option{server.WithLogger(quiet)}, opts...)
	return server.NewHandler(synth, &stubVoiceLister{voices: []tts.Voice{{ID: "af_sarah", Positions: 511}}}, opts...)
}

func postSpeech(h http.Handler, body any) *httptest.ResponseRecorder {
	b, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Message == "" || body.Error.Type == "" {
		t.Fatalf("incomplete error body: %+v", body)
	}
	return body
}

// ---------------------------------------------------------------------------
// GET endpoints
// ---------------------------------------------------------------------------

func TestHealth_Returns200WithStatusOK(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("want status=ok, got %q", body["status"])
	}
	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("want X-Request-Id header")
	}
}

func TestRequestID_EchoesClientValue(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("X-Request-Id = %q", got)
	}
}

func TestVoices_ReturnsList(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audio/voices", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var body struct {
		Voices []tts.Voice `json:"voices"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Voices) != 1 || body.Voices[0].ID != "af_sarah" {
		t.Fatalf("voices = %+v", body.Voices)
	}
}

func TestModels_ListsKokoro(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"kokoro"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestMetrics_ServedWhenEnabled(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{}, server.WithMetrics(metrics.New()))

	// One request so the counter has a sample.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `kokorotts_http_requests_total{code="200",path="/health"} 1`) {
		t.Fatalf("request counter missing:\n%s", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// POST /v1/audio/speech
// ---------------------------------------------------------------------------

func TestSpeech_ReturnsStereoFloatWAV(t *testing.T) {
	synth := &stubSynthesizer{samples: []float32{0.1, -0.2, 0.3}}
	h := newTestHandler(synth)

	rec := postSpeech(h, map[string]any{"model": "kokoro", "input": "Hello.", "voice": "af_sarah", "speed": 1.5})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q", ct)
	}

	samples := testutil.AssertWAV(t, rec.Body.Bytes(), audio.Format{SampleRate: 24000, Channels: 2, SampleFormat: audio.F32})
	left := testutil.Mono(samples, 2)
	if len(left) != 3 || left[1] != -0.2 {
		t.Fatalf("left channel = %v", left)
	}
	if synth.got.Style != "af_sarah" || synth.got.Speed != 1.5 || synth.got.Text != "Hello." {
		t.Fatalf("request not forwarded: %+v", synth.got)
	}
}

func TestSpeech_PCMFormat(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{samples: []float32{0, 1, -1}})
	rec := postSpeech(h, map[string]any{"input": "Hi.", "response_format": "pcm"})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 6 {
		t.Fatalf("pcm body = %d bytes; want 6", rec.Body.Len())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/pcm" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestSpeech_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"invalid json", `{"input":`, http.StatusBadRequest},
		{"missing input", `{"voice":"af_sarah"}`, http.StatusBadRequest},
		{"blank input", `{"input":"   "}`, http.StatusBadRequest},
		{"speed too low", `{"input":"hi","speed":0.1}`, http.StatusBadRequest},
		{"speed too high", `{"input":"hi","speed":5}`, http.StatusBadRequest},
		{"bad format", `{"input":"hi","response_format":"mp3"}`, http.StatusBadRequest},
		{"oversized", `{"input":"` + strings.Repeat("x", 11) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&stubSynthesizer{samples: []float32{0}}, server.WithMaxTextBytes(10))
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(tt.body))
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("want %d, got %d", tt.wantCode, rec.Code)
			}
			decodeError(t, rec)
		})
	}
}

func TestSpeech_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audio/speech", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

func TestSpeech_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantErrCode string
	}{
		{"unknown style", fmt.Errorf("%w %q", style.ErrUnknownStyle, "zz"), http.StatusBadRequest, "voice_not_found"},
		{"phonemize", &phonemize.Error{Lang: "xx", Text: "hi", Err: errors.New("bad voice")}, http.StatusInternalServerError, "phonemize_failed"},
		{"inference", &tts.ChunkInferenceError{Index: 0, Text: "hi", Err: errors.New("ort")}, http.StatusInternalServerError, "synthesis_failed"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&stubSynthesizer{err: tt.err})
			rec := postSpeech(h, map[string]any{"input": "hi"})
			if rec.Code != tt.wantCode {
				t.Fatalf("want %d, got %d", tt.wantCode, rec.Code)
			}
			if body := decodeError(t, rec); body.Error.Code != tt.wantErrCode {
				t.Errorf("code = %q; want %q", body.Error.Code, tt.wantErrCode)
			}
		})
	}
}

func TestSpeech_RateLimited(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{samples: []float32{0}}, server.WithRateLimit(0.001, 1))

	if rec := postSpeech(h, map[string]any{"input": "hi"}); rec.Code != http.StatusOK {
		t.Fatalf("first request: want 200, got %d", rec.Code)
	}
	rec := postSpeech(h, map[string]any{"input": "hi"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: want 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("want Retry-After header")
	}
	decodeError(t, rec)
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

func TestSpeech_StreamWritesHeaderThenChunks(t *testing.T) {
	synth := &stubSynthesizer{chunks: [][]float32{{0.1, 0.2}, {0.3}, {0.4, 0.5, 0.6}}}
	h := newTestHandler(synth)

	rec := postSpeech(h, map[string]any{"input": "a. b. c.", "stream": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if !rec.Flushed {
		t.Error("stream response was never flushed")
	}

	data := rec.Body.Bytes()
	if len(data) != 44+6*4 {
		t.Fatalf("body = %d bytes; want header + 6 float samples", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing WAV header")
	}
}

func TestSpeech_StreamPCM(t *testing.T) {
	synth := &stubSynthesizer{chunks: [][]float32{{0.1, 0.2}, {0.3}}}
	h := newTestHandler(synth)

	rec := postSpeech(h, map[string]any{"input": "a. b.", "stream": true, "response_format": "pcm"})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 6 {
		t.Fatalf("body = %d bytes; want 6", rec.Body.Len())
	}
}

func TestSpeech_StreamErrorBeforeFirstChunk(t *testing.T) {
	synth := &stubSynthesizer{err: fmt.Errorf("%w %q", style.ErrUnknownStyle, "zz")}
	h := newTestHandler(synth)

	rec := postSpeech(h, map[string]any{"input": "hi", "stream": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
	decodeError(t, rec)
}

func TestSpeech_StreamErrorAfterFirstChunkKeepsStatus(t *testing.T) {
	synth := &stubSynthesizer{chunks: [][]float32{{0.1}}, err: errors.New("engine failed")}
	h := newTestHandler(synth)

	rec := postSpeech(h, map[string]any{"input": "a. b.", "stream": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 44+4 {
		t.Fatalf("body = %d bytes; want header + 1 sample", rec.Body.Len())
	}
}

// ---------------------------------------------------------------------------
// ParseLogLevel
// ---------------------------------------------------------------------------

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := server.ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLogLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}
