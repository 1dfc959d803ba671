package audio

import (
	"errors"
	"fmt"
	"strings"
)

// SampleRate is the fixed output rate of the Kokoro model.
const SampleRate = 24000

// SampleFormat selects how samples are stored in the container.
type SampleFormat string

const (
	// F32 stores IEEE 754 32-bit float samples.
	F32 SampleFormat = "f32"
	// S16 stores 16-bit signed PCM samples, clamped to [-1, 1].
	S16 SampleFormat = "s16"
)

// ErrFormatMismatch is returned when a decoded WAV does not match the expected format.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// ParseSampleFormat accepts "f32" or "s16" (case-insensitive); empty means F32.
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch SampleFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", F32:
		return F32, nil
	case S16:
		return S16, nil
	}
	return "", fmt.Errorf("unknown sample format %q (want f32 or s16)", s)
}

// BitDepth returns the bits per sample.
func (f SampleFormat) BitDepth() int {
	if f == S16 {
		return 16
	}
	return 32
}

func (f SampleFormat) formatTag() uint16 {
	if f == S16 {
		return 1 // PCM
	}
	return 3 // IEEE float
}

// Format describes an output stream.
type Format struct {
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
}

// DefaultFormat is 24 kHz mono float.
func DefaultFormat() Format {
	return Format{SampleRate: SampleRate, Channels: 1, SampleFormat: F32}
}

// Validate checks the format is encodable.
func (f Format) Validate() error {
	if f.SampleRate < 1 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.SampleFormat != F32 && f.SampleFormat != S16 {
		return fmt.Errorf("invalid sample format %q", f.SampleFormat)
	}
	return nil
}

func (f Format) blockAlign() int {
	return f.Channels * f.SampleFormat.BitDepth() / 8
}

// Duration returns the playback length in seconds of n mono samples.
func Duration(n int) float64 {
	return float64(n) / SampleRate
}
