// Package speech turns a live PCM stream into grammar-constrained speech
// events using a local Whisper model.
package speech

import (
	"fmt"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
)

// Encoding is the sample encoding of an input stream.
type Encoding int

const (
	EncodingPCM Encoding = iota
	EncodingFloat
)

// String returns a human-readable encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingPCM:
		return "PCM"
	case EncodingFloat:
		return "Float"
	default:
		return "Unknown"
	}
}

// AudioFormat describes the input stream handed to the recognizer.
type AudioFormat struct {
	Encoding          Encoding
	SamplesPerSecond  int
	BitsPerSample     int
	Channels          int
	AvgBytesPerSecond int
	BlockAlign        int
}

// SensorFormat is the only stream layout the recognizer accepts:
// PCM, 16 kHz, 16-bit, mono.
var SensorFormat = AudioFormat{
	Encoding:          EncodingPCM,
	SamplesPerSecond:  16000,
	BitsPerSample:     16,
	Channels:          1,
	AvgBytesPerSecond: 32000,
	BlockAlign:        2,
}

// String formats the layout as e.g. "PCM 16000 Hz/16-bit/1 ch".
func (f AudioFormat) String() string {
	return fmt.Sprintf("%s %d Hz/%d-bit/%d ch", f.Encoding, f.SamplesPerSecond, f.BitsPerSample, f.Channels)
}

// Validate checks the format against SensorFormat.
func (f AudioFormat) Validate() error {
	if f != SensorFormat {
		return fmt.Errorf("%w: unsupported audio format %s (avg %d B/s, align %d), want %s",
			domain.ErrConfiguration, f, f.AvgBytesPerSecond, f.BlockAlign, SensorFormat)
	}
	return nil
}
