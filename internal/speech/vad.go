package speech

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

const (
	frameSamples = 512 // 32 ms @ 16 kHz
	sampleRate   = 16000

	// fluxRatio is the jump between consecutive frames that marks the
	// start of speech, and the drop that marks a quiet frame.
	fluxRatio = 1.75

	bandLowHz  = 300
	bandHighHz = 3400
)

// FluxVAD measures spectral energy in the voice band of fixed-size
// frames.
type FluxVAD struct {
	size   int
	lo, hi int
	floor  float64
	buf    []float64
}

// NewFluxVAD creates a detector for frames of size samples. Frames
// quieter than floor (normalised amplitude) all measure as floor.
func NewFluxVAD(size int, floor float64) *FluxVAD {
	binHz := float64(sampleRate) / float64(size)
	return &FluxVAD{
		size:  size,
		lo:    int(math.Ceil(bandLowHz / binHz)),
		hi:    int(math.Floor(bandHighHz / binHz)),
		floor: floor,
		buf:   make([]float64, size),
	}
}

// Flux returns the voice-band level of frame. Short frames are zero
// padded.
func (v *FluxVAD) Flux(frame []int16) float64 {
	for i := range v.buf {
		if i < len(frame) {
			v.buf[i] = float64(frame[i]) / 32768
		} else {
			v.buf[i] = 0
		}
	}

	spectrum := fft.FFTReal(v.buf)
	var energy float64
	for k := v.lo; k <= v.hi && k < len(spectrum)/2; k++ {
		m := cmplx.Abs(spectrum[k])
		energy += m * m
	}
	flux := math.Sqrt(energy) / float64(v.size)
	if flux < v.floor {
		return v.floor
	}
	return flux
}

// SegmenterConfig tunes utterance detection.
type SegmenterConfig struct {
	QuietTime    time.Duration // trailing quiet that closes an utterance
	PreRoll      time.Duration // audio kept from before the onset
	MaxUtterance time.Duration // utterances are cut at this length
	Floor        float64       // VAD noise floor
}

// DefaultSegmenterConfig suits short spoken commands.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		QuietTime:    400 * time.Millisecond,
		PreRoll:      300 * time.Millisecond,
		MaxUtterance: 6 * time.Second,
		Floor:        0.002,
	}
}

func samplesFor(d time.Duration) int {
	return int(d * sampleRate / time.Second)
}

// Segmenter splits a continuous sample stream into utterances. Timing
// is measured in samples so replayed audio segments the same way at any
// speed.
type Segmenter struct {
	vad       *FluxVAD
	preRoll   *ring
	quietMax  int
	utterMax  int
	pending   []int16
	utterance []int16

	heard      bool
	quiet      bool
	quietCount int
	lastFlux   float64 // previous frame, before onset
	peakFlux   float64 // loudest frame of the utterance in progress
}

// NewSegmenter creates a segmenter.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	preRoll := samplesFor(cfg.PreRoll)
	if preRoll < frameSamples {
		preRoll = frameSamples
	}
	return &Segmenter{
		vad:      NewFluxVAD(frameSamples, cfg.Floor),
		preRoll:  newRing(preRoll),
		quietMax: samplesFor(cfg.QuietTime),
		utterMax: samplesFor(cfg.MaxUtterance),
	}
}

// Write consumes samples and returns any utterances they complete.
func (s *Segmenter) Write(samples []int16) [][]int16 {
	s.pending = append(s.pending, samples...)

	var out [][]int16
	for len(s.pending) >= frameSamples {
		frame := make([]int16, frameSamples)
		copy(frame, s.pending)
		n := copy(s.pending, s.pending[frameSamples:])
		s.pending = s.pending[:n]

		if u := s.frame(frame); u != nil {
			out = append(out, u)
		}
	}
	return out
}

// Flush returns the utterance in progress, if any, and resets.
func (s *Segmenter) Flush() []int16 {
	var u []int16
	if s.heard {
		u = append(s.utterance, s.pending...)
	}
	s.reset()
	s.pending = s.pending[:0]
	return u
}

// Active reports whether an utterance is in progress.
func (s *Segmenter) Active() bool { return s.heard }

func (s *Segmenter) frame(frame []int16) []int16 {
	flux := s.vad.Flux(frame)

	if !s.heard {
		onset := s.lastFlux > 0 && flux >= s.lastFlux*fluxRatio
		if !onset {
			s.preRoll.Add(frame)
			s.lastFlux = flux
			return nil
		}
		s.heard = true
		s.utterance = append(s.preRoll.Read(), frame...)
		s.preRoll.Clear()
		s.lastFlux = flux
		s.peakFlux = flux
		return nil
	}

	s.utterance = append(s.utterance, frame...)

	// Quiet is relative to the peak so a slow fade still ends the utterance.
	if flux*fluxRatio <= s.peakFlux {
		if !s.quiet {
			s.quiet = true
			s.quietCount = 0
		}
		s.quietCount += len(frame)
		if s.quietCount >= s.quietMax {
			return s.finish()
		}
	} else {
		s.quiet = false
		s.peakFlux = max(s.peakFlux, flux)
	}

	if len(s.utterance) >= s.utterMax {
		return s.finish()
	}
	return nil
}

func (s *Segmenter) finish() []int16 {
	u := s.utterance
	s.reset()
	return u
}

func (s *Segmenter) reset() {
	s.utterance = nil
	s.heard = false
	s.quiet = false
	s.quietCount = 0
	s.lastFlux = 0
	s.peakFlux = 0
	s.preRoll.Clear()
}
