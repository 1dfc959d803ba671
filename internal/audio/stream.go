package audio

import (
	"fmt"
	"io"
	"sync"
)

// StreamWriter is the incremental sink: one WAV header with unknown length,
// then one raw sample block per WriteSamples call, each followed by a flush
// when the destination supports it.
type StreamWriter struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	header bool
	blocks int
}

// NewStreamWriter returns a writer for w. Nothing is written until
// WriteHeader or the first WriteSamples.
func NewStreamWriter(w io.Writer, f Format) (*StreamWriter, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &StreamWriter{w: w, format: f}, nil
}

// Format returns the stream format.
func (s *StreamWriter) Format() Format {
	return s.format
}

// WriteHeader writes the streaming WAV header once; later calls are no-ops.
func (s *StreamWriter) WriteHeader() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeHeaderLocked()
}

func (s *StreamWriter) writeHeaderLocked() error {
	if s.header {
		return nil
	}
	hdr := header(s.format, streamingLength, streamingLength)
	if _, err := s.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write stream header: %w", err)
	}
	s.header = true
	return flush(s.w)
}

// WriteSamples appends one block of interleaved samples and flushes.
func (s *StreamWriter) WriteSamples(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeHeaderLocked(); err != nil {
		return err
	}
	if _, err := s.w.Write(EncodeSamples(samples, s.format.SampleFormat)); err != nil {
		return fmt.Errorf("write stream block %d: %w", s.blocks, err)
	}
	s.blocks++
	return flush(s.w)
}

// Blocks returns how many sample blocks have been written.
func (s *StreamWriter) Blocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks
}

// WritePCM16 writes samples as raw little-endian 16-bit PCM with no header.
func WritePCM16(w io.Writer, samples []float32) (int, error) {
	return w.Write(EncodeSamples(samples, S16))
}

type errFlusher interface{ Flush() error }

type plainFlusher interface{ Flush() }

func flush(w io.Writer) error {
	switch f := w.(type) {
	case errFlusher:
		return f.Flush()
	case plainFlusher:
		f.Flush()
	}
	return nil
}
