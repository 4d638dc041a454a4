package speech

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

type stubStage struct {
	in, out []float32
	runs    int
	fn      func(in, out []float32)
}

func newStubStage(in, out int, fn func(in, out []float32)) *stubStage {
	return &stubStage{in: make([]float32, in), out: make([]float32, out), fn: fn}
}

func (s *stubStage) input() []float32  { return s.in }
func (s *stubStage) output() []float32 { return s.out }
func (s *stubStage) destroy()          {}

func (s *stubStage) run() error {
	s.runs++
	if s.fn != nil {
		s.fn(s.in, s.out)
	}
	return nil
}

func stubGate(score float32) (*WakeGate, *stubStage, *stubStage) {
	emb := newStubStage(melWindowSize*melBins, embeddingDim, nil)
	ww := newStubStage(nEmbedFrames*embeddingDim, 1, func(_, out []float32) { out[0] = score })
	g := &WakeGate{
		log:       logger.New(logger.LevelOff, nil),
		melspec:   newStubStage(wakeChunk, nMelFrames*melBins, nil),
		embedding: emb,
		wakeword:  ww,
	}
	return g, emb, ww
}

func TestWakeGateScoresShortUtterance(t *testing.T) {
	g, emb, ww := stubGate(0.8)

	// Two chunks, far less than a full mel window.
	score, err := g.Score(voice(160 * time.Millisecond))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, score, 1e-6)
	assert.Equal(t, 2, ww.runs)

	// Older mel frames still hold the initial ones, the newest the
	// scaled melspectrogram output.
	assert.Equal(t, float32(1), emb.in[0])
	assert.Equal(t, float32(2), emb.in[len(emb.in)-1])
}

func TestWakeGateScoreEdges(t *testing.T) {
	g, _, ww := stubGate(0.8)

	score, err := g.Score(voice(50 * time.Millisecond))
	require.NoError(t, err)
	assert.Zero(t, score, "shorter than one chunk")
	assert.Zero(t, ww.runs)

	g.wakeword = nil
	_, err = g.Score(voice(time.Second))
	assert.Error(t, err)
}
