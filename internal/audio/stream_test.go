package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// recordingSink records every Write and Flush in order.
type recordingSink struct {
	events []string
	writes [][]byte
}

func (r *recordingSink) Write(p []byte) (int, error) {
	r.events = append(r.events, "write")
	r.writes = append(r.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (r *recordingSink) Flush() error {
	r.events = append(r.events, "flush")
	return nil
}

func TestStreamWriter_HeaderOnceThenFlushedBlocks(t *testing.T) {
	sink := &recordingSink{}
	sw, err := NewStreamWriter(sink, DefaultFormat())
	if err != nil {
		t.Fatal(err)
	}
	if err := sw.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	if err := sw.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	for _, block := range [][]float32{{0.1}, {0.2, 0.3}, {0.4}} {
		if err := sw.WriteSamples(block); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"write", "flush", "write", "flush", "write", "flush", "write", "flush"}
	if len(sink.events) != len(want) {
		t.Fatalf("events = %v; want %v", sink.events, want)
	}
	for i := range want {
		if sink.events[i] != want[i] {
			t.Fatalf("events = %v; want %v", sink.events, want)
		}
	}

	hdr := sink.writes[0]
	if len(hdr) != 44 || string(hdr[0:4]) != "RIFF" {
		t.Fatalf("first write is not a WAV header: %q", hdr)
	}
	if binary.LittleEndian.Uint32(hdr[4:8]) != 0xFFFFFFFF || binary.LittleEndian.Uint32(hdr[40:44]) != 0xFFFFFFFF {
		t.Fatal("streaming header should carry unknown lengths")
	}
	if binary.LittleEndian.Uint16(hdr[22:24]) != 1 {
		t.Fatal("streaming header should be mono")
	}
	if len(sink.writes[2]) != 8 {
		t.Fatalf("second block = %d bytes; want 8", len(sink.writes[2]))
	}
	if sw.Blocks() != 3 {
		t.Fatalf("Blocks = %d; want 3", sw.Blocks())
	}
}

func TestStreamWriter_ImplicitHeader(t *testing.T) {
	var buf bytes.Buffer
	sw, err := NewStreamWriter(&buf, Format{SampleRate: SampleRate, Channels: 1, SampleFormat: S16})
	if err != nil {
		t.Fatal(err)
	}
	if err := sw.WriteSamples([]float32{0.5, -0.5}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 44+4 {
		t.Fatalf("len = %d; want 48", buf.Len())
	}
	if binary.LittleEndian.Uint16(buf.Bytes()[20:22]) != 1 {
		t.Fatal("s16 stream should use PCM format tag")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestStreamWriter_WriteError(t *testing.T) {
	sw, err := NewStreamWriter(failingWriter{}, DefaultFormat())
	if err != nil {
		t.Fatal(err)
	}
	if err := sw.WriteSamples([]float32{0}); err == nil {
		t.Fatal("want error")
	}
}

func TestNewStreamWriter_InvalidFormat(t *testing.T) {
	if _, err := NewStreamWriter(&bytes.Buffer{}, Format{}); err == nil {
		t.Fatal("want error")
	}
}

func TestWritePCM16(t *testing.T) {
	var buf bytes.Buffer
	n, err := WritePCM16(&buf, []float32{0, 0.5, -1})
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 || buf.Len() != 6 {
		t.Fatalf("wrote %d bytes; want 6", n)
	}
	if v := int16(binary.LittleEndian.Uint16(buf.Bytes()[2:])); v != 16383 {
		t.Fatalf("sample 1 = %d; want 16383", v)
	}
}
