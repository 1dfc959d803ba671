package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/wav"
)

// DecodeWAV decodes a WAV produced by EncodeWAV and returns its interleaved
// samples and format. 16-bit PCM goes through the wav decoder; IEEE float
// data is read directly from the canonical 44-byte layout.
func DecodeWAV(data []byte) ([]float32, Format, error) {
	if len(data) < headerSize {
		return nil, Format{}, errors.New("WAV input too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, errors.New("invalid WAV file")
	}

	switch tag := binary.LittleEndian.Uint16(data[20:22]); tag {
	case 3:
		return decodeFloat(data)
	case 1:
		return decodePCM16(data)
	default:
		return nil, Format{}, fmt.Errorf("%w: format tag %d", ErrFormatMismatch, tag)
	}
}

func decodeFloat(data []byte) ([]float32, Format, error) {
	f := Format{
		Channels:     int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate:   int(binary.LittleEndian.Uint32(data[24:28])),
		SampleFormat: F32,
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 32 {
		return nil, Format{}, fmt.Errorf("%w: float bit depth %d", ErrFormatMismatch, bits)
	}
	if string(data[36:40]) != "data" {
		return nil, Format{}, errors.New("WAV data chunk not found")
	}

	body := data[headerSize:]
	if size := binary.LittleEndian.Uint32(data[40:44]); size != streamingLength && int(size) <= len(body) {
		body = body[:size]
	}
	samples := make([]float32, len(body)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return samples, f, nil
}

func decodePCM16(data []byte) ([]float32, Format, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, Format{}, errors.New("invalid WAV file")
	}
	if dec.BitDepth != 16 {
		return nil, Format{}, fmt.Errorf("%w: bit depth %d, want 16", ErrFormatMismatch, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("reading PCM data: %w", err)
	}
	f := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans), SampleFormat: S16}
	return buf.Data, f, nil
}
