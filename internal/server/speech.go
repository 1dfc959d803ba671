package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/pool"
	"github.com/example/go-kokoro-tts/internal/style"
	"github.com/example/go-kokoro-tts/internal/tts"
)

const (
	minSpeed = 0.25
	maxSpeed = 4.0
)

// speechRequest is the body of POST /v1/audio/speech.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float32 `json:"speed"`
	ResponseFormat string  `json:"response_format"`
	Stream         bool    `json:"stream"`
}

func (h *handler) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method_not_allowed", "method not allowed")
		return
	}

	var req speechRequest
	body := http.MaxBytesReader(w, r.Body, int64(h.opts.maxTextBytes)+4096)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "input_too_large",
				fmt.Sprintf("input exceeds maximum size of %d bytes", h.opts.maxTextBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid_json", "invalid JSON: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "missing_input", "input field is required")
		return
	}
	if len(req.Input) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "input_too_large",
			fmt.Sprintf("input exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}
	if req.Speed != 0 && (req.Speed < minSpeed || req.Speed > maxSpeed) {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid_speed",
			fmt.Sprintf("speed must be between %v and %v", minSpeed, maxSpeed))
		return
	}
	format := strings.ToLower(req.ResponseFormat)
	switch format {
	case "":
		format = "wav"
	case "wav", "pcm":
	default:
		writeError(w, http.StatusBadRequest, "invalid_request_error", "unsupported_format",
			fmt.Sprintf("unsupported response_format %q (want wav or pcm)", req.ResponseFormat))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	treq := tts.Request{Text: req.Input, Style: req.Voice, Speed: req.Speed}
	if req.Stream {
		h.streamSpeech(ctx, w, treq, format)
		return
	}

	start := time.Now()
	samples, err := h.synth.Synthesize(ctx, treq)
	durationMS := time.Since(start).Milliseconds()
	if err != nil {
		h.log.ErrorContext(ctx, "synthesis failed",
			slog.String("voice", req.Voice),
			slog.Int("text_len", len(req.Input)),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		h.writeSynthesisError(w, err)
		return
	}

	var data []byte
	contentType := "audio/wav"
	if format == "pcm" {
		data = audio.EncodeSamples(samples, audio.S16)
		contentType = "audio/pcm"
	} else {
		data, err = audio.EncodeWAV(audio.Interleave(samples, h.opts.format.Channels, h.opts.phaseShift), h.opts.format)
		if err != nil {
			h.writeSynthesisError(w, err)
			return
		}
	}

	h.log.InfoContext(ctx, "synthesis complete",
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Input)),
		slog.Int64("duration_ms", durationMS),
		slog.Int("audio_bytes", len(data)),
	)

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// streamSpeech writes mono audio chunk by chunk. Once the first byte is out
// the status cannot change, so later failures only end the body early.
func (h *handler) streamSpeech(ctx context.Context, w http.ResponseWriter, req tts.Request, format string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan tts.PCMChunk, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- h.synth.SynthesizeStream(ctx, req, chunks) }()

	var sw *audio.StreamWriter
	if format == "wav" {
		var err error
		sw, err = audio.NewStreamWriter(w, audio.Format{
			SampleRate:   audio.SampleRate,
			Channels:     1,
			SampleFormat: h.opts.format.SampleFormat,
		})
		if err != nil {
			cancel()
			for range chunks {
			}
			<-errCh
			h.writeSynthesisError(w, err)
			return
		}
	}

	started := false
	var writeErr error
	for c := range chunks {
		if writeErr != nil {
			continue
		}
		if !started {
			w.Header().Set("Content-Type", "audio/"+format)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if sw != nil {
			writeErr = sw.WriteSamples(c.Samples)
		} else if _, writeErr = audio.WritePCM16(w, c.Samples); writeErr == nil {
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		if writeErr != nil {
			cancel()
		}
	}

	err := <-errCh
	if err == nil {
		err = writeErr
	}
	switch {
	case err != nil && !started:
		h.log.ErrorContext(ctx, "streaming synthesis failed", slog.String("error", err.Error()))
		h.writeSynthesisError(w, err)
	case err != nil:
		h.log.WarnContext(ctx, "streaming synthesis aborted", slog.String("error", err.Error()))
	case !started:
		// Empty input after normalization: an empty but valid stream.
		w.Header().Set("Content-Type", "audio/"+format)
		w.WriteHeader(http.StatusOK)
		if sw != nil {
			_ = sw.WriteHeader()
		}
	}
}

// writeSynthesisError maps pipeline errors to status codes.
func (h *handler) writeSynthesisError(w http.ResponseWriter, err error) {
	var perr *phonemize.Error
	switch {
	case errors.Is(err, style.ErrUnknownStyle):
		writeError(w, http.StatusBadRequest, "invalid_request_error", "voice_not_found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "server_error", "timeout", "synthesis timed out")
	case errors.Is(err, context.Canceled), errors.Is(err, pool.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "server_error", "unavailable", "request cancelled while waiting for an instance")
	case errors.As(err, &perr):
		writeError(w, http.StatusInternalServerError, "server_error", "phonemize_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "synthesis_failed", err.Error())
	}
}
