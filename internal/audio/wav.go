package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

const (
	headerSize      = 44
	streamingLength = 0xFFFFFFFF
)

// EncodeWAV encodes interleaved samples as a complete WAV container.
func EncodeWAV(samples []float32, f Format) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.SampleFormat == S16 {
		return encodePCM16(samples, f)
	}

	dataSize := len(samples) * 4
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+dataSize))
	hdr := header(f, uint32(dataSize), uint32(4+(8+16)+(8+dataSize)))
	buf.Write(hdr[:])
	buf.Write(EncodeSamples(samples, F32))
	return buf.Bytes(), nil
}

// WriteWAV writes EncodeWAV's output to w.
func WriteWAV(w io.Writer, samples []float32, f Format) error {
	data, err := EncodeWAV(samples, f)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// encodePCM16 uses the wav encoder, which needs a seekable sink to patch
// chunk sizes on Close.
func encodePCM16(samples []float32, f Format) ([]byte, error) {
	var buf bytes.Buffer
	sw := &seekBuffer{buf: &buf}

	enc := wav.NewEncoder(sw, f.SampleRate, 16, f.Channels, 1) // 1 = PCM

	pcmBuf := &goaudio.Float32Buffer{
		Data:           clamp(samples),
		Format:         &goaudio.Format{SampleRate: f.SampleRate, NumChannels: f.Channels},
		SourceBitDepth: 16,
	}
	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp(samples []float32) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(math.Max(-1, math.Min(1, float64(s))))
	}
	return out
}

// header builds a canonical 44-byte RIFF/WAVE header.
func header(f Format, dataSize, riffSize uint32) [headerSize]byte {
	bits := f.SampleFormat.BitDepth()
	blockAlign := f.blockAlign()

	var hdr [headerSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], riffSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], f.SampleFormat.formatTag())
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(bits))
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)
	return hdr
}

// EncodeSamples serializes samples little-endian in the given format. S16
// samples are clamped to [-1, 1]; NaN becomes 0.
func EncodeSamples(samples []float32, sf SampleFormat) []byte {
	if sf == S16 {
		buf := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(toPCM16(s)))
		}
		return buf
	}
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

func toPCM16(s float32) int16 {
	if s != s {
		return 0
	}
	clamped := math.Max(-1.0, math.Min(1.0, float64(s)))
	return int16(clamped * 32767)
}

// seekBuffer wraps a bytes.Buffer to satisfy io.WriteSeeker.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if s.pos == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += n
		return n, err
	}
	data := s.buf.Bytes()
	n := copy(data[s.pos:], p)
	if n < len(p) {
		s.buf.Write(p[n:])
		n = len(p)
	}
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int
	switch whence {
	case io.SeekStart:
		newPos = int(offset)
	case io.SeekCurrent:
		newPos = s.pos + int(offset)
	case io.SeekEnd:
		newPos = s.buf.Len() + int(offset)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("seek before start")
	}
	s.pos = newPos
	return int64(newPos), nil
}
