// Package stt wraps the whisper.cpp bindings as a domain.Transcriber.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// Compile-time interface check.
var _ domain.Transcriber = (*Transcriber)(nil)

// Options tunes decoding.
type Options struct {
	Language string // e.g. "en"; "auto" detects
	Threads  int    // <=0 => NumCPU()
	BeamSize int    // 0 = greedy
}

// Transcriber runs a whisper model. One utterance is decoded at a time.
type Transcriber struct {
	opts Options
	log  *logger.Logger

	mu    sync.Mutex
	model whisper.Model
}

// New loads the model at modelPath.
func New(modelPath string, opts Options, log *logger.Logger) (*Transcriber, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: empty model path", domain.ErrRecognizerUnavailable)
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w: %v", modelPath, domain.ErrRecognizerUnavailable, err)
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.Threads <= 0 {
		opts.Threads = runtime.NumCPU()
	}
	log.Debug("stt: loaded %s (lang=%s, threads=%d)", modelPath, opts.Language, opts.Threads)
	return &Transcriber{opts: opts, log: log, model: m}, nil
}

// Close releases the model.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// Transcribe decodes samples. Confidence is the mean probability of the
// text tokens across all segments.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, prompt string) (domain.Transcript, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return domain.Transcript{}, errors.New("stt: model closed")
	}
	if len(samples) == 0 {
		return domain.Transcript{}, errors.New("stt: no audio samples provided")
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("new context: %w", err)
	}
	if err := wctx.SetLanguage(t.opts.Language); err != nil {
		return domain.Transcript{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(false)
	wctx.SetThreads(uint(t.opts.Threads))
	if t.opts.BeamSize > 0 {
		wctx.SetBeamSize(t.opts.BeamSize)
	}
	if prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return domain.Transcript{}, fmt.Errorf("process: %w", err)
	}

	var (
		parts []string
		sumP  float64
		nTok  int
	)
	for {
		if err := ctx.Err(); err != nil {
			return domain.Transcript{}, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.Transcript{}, fmt.Errorf("next segment: %w", err)
		}
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range s.Tokens {
			if !wctx.IsText(tok) {
				continue
			}
			sumP += float64(tok.P)
			nTok++
		}
	}

	tr := domain.Transcript{Text: strings.Join(parts, " ")}
	if nTok > 0 {
		tr.Confidence = sumP / float64(nTok)
	}
	t.log.Debug("stt: %q (confidence=%.2f, tokens=%d)", tr.Text, tr.Confidence, nTok)
	return tr, nil
}
