package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/style"
	"github.com/example/go-kokoro-tts/internal/testutil"
	"github.com/example/go-kokoro-tts/internal/text"
	"github.com/example/go-kokoro-tts/internal/tokenizer"
	"github.com/example/go-kokoro-tts/internal/tts"
)

func TestServe_LifecycleHealthAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := testutil.NewEchoPool(t, 1, &testutil.EchoEngine{})
	planner := text.NewPlanner(&testutil.Phonemizer{}, tokenizer.Default(), 500)
	svc := tts.NewService(planner, style.Missing(errors.New("no voices")), p, tts.Settings{}, logger)

	cfg := config.DefaultConfig()
	s := New(cfg, svc, nil, logger).WithShutdownTimeout(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(ctx, ln)
	}()

	var probeErr error
	for range 50 {
		probeCtx, probeCancel := context.WithTimeout(context.Background(), time.Second)
		probeErr = ProbeHTTP(probeCtx, addr)
		probeCancel()
		if probeErr == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if probeErr != nil {
		t.Fatalf("server never became ready: %v", probeErr)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/v1/audio/voices", addr))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("voices: want 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_HandlerRejectsBadSampleFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TTS.SampleFormat = "u8"
	s := New(cfg, nil, nil, nil)
	if _, err := s.Handler(); err == nil {
		t.Fatal("want error for unknown sample format")
	}
}

func TestProbeHTTP_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ProbeHTTP(ctx, addr); err == nil {
		t.Fatal("want error for closed port")
	}
}
