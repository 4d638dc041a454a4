package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/kinectdrone/internal/command"
	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// Compile-time interface check.
var _ domain.SpeechEngine = (*Recognizer)(nil)

const readChunk = 3200 // 100 ms of 16-bit mono

// WakeScorer scores how likely an utterance starts with the wake word.
type WakeScorer interface {
	Score(samples []int16) (float64, error)
}

// Option configures the recognizer.
type Option func(*Recognizer)

// WithWakeGate drops utterances whose wake score is below threshold
// before they reach the transcriber.
func WithWakeGate(w WakeScorer, threshold float64) Option {
	return func(r *Recognizer) {
		r.wake = w
		r.wakeThreshold = threshold
	}
}

// WithSegmenterConfig overrides utterance detection.
func WithSegmenterConfig(cfg SegmenterConfig) Option {
	return func(r *Recognizer) {
		r.segCfg = cfg
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recognizer) {
		r.now = now
	}
}

// Recognizer is a continuous speech recognizer. Each utterance is
// transcribed and matched against the loaded grammar: a match produces a
// SpeechRecognized event carrying the canonical grammar text, anything
// else a SpeechRejected event.
type Recognizer struct {
	info          RecognizerInfo
	transcriber   domain.Transcriber
	log           *logger.Logger
	wake          WakeScorer
	wakeThreshold float64
	segCfg        SegmenterConfig
	now           func() time.Time

	mu      sync.Mutex
	grammar *command.Grammar
	input   io.Reader
	running bool
}

// New creates a recognizer for the given engine.
func New(info RecognizerInfo, transcriber domain.Transcriber, log *logger.Logger, opts ...Option) *Recognizer {
	r := &Recognizer{
		info:        info,
		transcriber: transcriber,
		log:         log,
		segCfg:      DefaultSegmenterConfig(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Info describes the engine behind this recognizer.
func (r *Recognizer) Info() RecognizerInfo { return r.info }

// LoadGrammar sets the grammar utterances are matched against.
func (r *Recognizer) LoadGrammar(g *command.Grammar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grammar = g
	r.log.Debug("speech: grammar loaded: %s %v", g.Prefix, g.Choices)
}

// SetInputToAudioStream sets the PCM source. The format must be
// SensorFormat.
func (r *Recognizer) SetInputToAudioStream(in io.Reader, format AudioFormat) error {
	if err := format.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input = in
	return nil
}

// RecognizeAsync recognizes utterances until ctx is cancelled or the
// input ends. The returned channel is closed when recognition stops.
func (r *Recognizer) RecognizeAsync(ctx context.Context) (<-chan domain.SpeechEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.grammar == nil {
		return nil, fmt.Errorf("%w: no grammar loaded", domain.ErrConfiguration)
	}
	if r.input == nil {
		return nil, fmt.Errorf("%w: no audio input", domain.ErrConfiguration)
	}
	if r.running {
		return nil, errors.New("speech: recognition already running")
	}
	r.running = true

	grammar, input := r.grammar, r.input
	out := make(chan domain.SpeechEvent, 8)
	utterances := make(chan []int16, 4)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(utterances)
		return r.segment(gctx, input, utterances)
	})
	g.Go(func() error {
		return r.decode(gctx, grammar, utterances, out)
	})

	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error("speech: recognition stopped: %v", err)
		}
		close(out)
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		r.log.Info("speech: recognition stopped")
	}()

	r.log.Info("speech: recognizing with %s (%s)", r.info.Name, r.info.Culture)
	return out, nil
}

// Close releases the transcriber.
func (r *Recognizer) Close() error {
	return r.transcriber.Close()
}

func (r *Recognizer) segment(ctx context.Context, in io.Reader, out chan<- []int16) error {
	seg := NewSegmenter(r.segCfg)
	buf := make([]byte, readChunk)
	var carry []byte

	send := func(u []int16) error {
		select {
		case out <- u:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		n, err := in.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			whole := len(data) &^ 1
			samples := make([]int16, whole/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
			}
			carry = append(carry[:0], data[whole:]...)

			for _, u := range seg.Write(samples) {
				if err := send(u); err != nil {
					return err
				}
			}
		}
		if errors.Is(err, io.EOF) {
			if u := seg.Flush(); len(u) > 0 {
				return send(u)
			}
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading audio: %w", err)
		}
	}
}

func (r *Recognizer) decode(ctx context.Context, g *command.Grammar, in <-chan []int16, out chan<- domain.SpeechEvent) error {
	prompt := g.Prompt()
	for u := range in {
		ev, ok := r.recognize(ctx, g, prompt, u)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Recognizer) recognize(ctx context.Context, g *command.Grammar, prompt string, u []int16) (domain.SpeechEvent, bool) {
	if r.wake != nil {
		score, err := r.wake.Score(u)
		if err != nil {
			r.log.Error("speech: wake gate: %v", err)
			return domain.SpeechEvent{}, false
		}
		if score < r.wakeThreshold {
			r.log.Debug("speech: wake score %.3f below %.2f, skipping %d samples", score, r.wakeThreshold, len(u))
			return domain.SpeechEvent{}, false
		}
	}

	samples := make([]float32, len(u))
	for i, s := range u {
		samples[i] = float32(s) / 32768
	}

	tr, err := r.transcriber.Transcribe(ctx, samples, prompt)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error("speech: transcribing: %v", err)
		}
		return domain.SpeechEvent{}, false
	}

	text := cleanTranscript(tr.Text)
	if text == "" {
		r.log.Debug("speech: empty transcript for %d samples", len(u))
		return domain.SpeechEvent{}, false
	}

	ev := domain.SpeechEvent{
		RecognitionEvent: domain.RecognitionEvent{Text: text, Confidence: tr.Confidence, Timestamp: r.now()},
	}
	if canonical, ok := g.Canonical(text); ok {
		ev.Kind = domain.SpeechRecognized
		ev.Text = canonical
		r.log.Debug("speech: recognized %q as %q (%.2f)", text, canonical, tr.Confidence)
	} else {
		ev.Kind = domain.SpeechRejected
		r.log.Debug("speech: rejected %q (%.2f)", text, tr.Confidence)
	}
	return ev, true
}
