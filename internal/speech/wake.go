package speech

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// Constants matching the openWakeWord pipeline.
const (
	wakeChunk     = 1280 // 80 ms @ 16 kHz
	melWindowSize = 76   // embedding model needs 76 mel frames
	melStepSize   = 8    // step between embedding windows
	embeddingDim  = 96   // output dim per embedding frame
	nEmbedFrames  = 16   // wakeword model needs 16 embedding frames
	melBins       = 32   // melspectrogram output bands
	nMelFrames    = 5    // 1280 samples → 5 mel frames

	// recentWindow is how many of the most recent embedding slots are
	// passed to the wakeword model; older slots are zeroed.
	recentWindow = 5
)

// WakeConfig holds the openWakeWord model paths.
type WakeConfig struct {
	WakewordModel  string // e.g. "models/hey_drone.onnx"
	MelspecModel   string // e.g. "models/melspectrogram.onnx"
	EmbeddingModel string // e.g. "models/embedding_model.onnx"
	OnnxLib        string // e.g. "lib/libonnxruntime.so"
}

// Enabled reports whether a wakeword model is configured.
func (c WakeConfig) Enabled() bool { return c.WakewordModel != "" }

func (c WakeConfig) validate() error {
	if c.WakewordModel == "" || c.MelspecModel == "" || c.EmbeddingModel == "" || c.OnnxLib == "" {
		return errors.New("wake gate needs wakeword, melspectrogram and embedding models plus the ONNX runtime library")
	}
	return nil
}

// wakeStage is one model of the pipeline with fixed input and output
// buffers.
type wakeStage interface {
	input() []float32
	output() []float32
	run() error
	destroy()
}

type onnxStage struct {
	in, out *ort.Tensor[float32]
	sess    *ort.AdvancedSession
}

func newStage(model string, inShape, outShape ort.Shape) (*onnxStage, error) {
	in, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, err
	}
	out, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		in.Destroy()
		return nil, err
	}
	inInfo, outInfo, err := ort.GetInputOutputInfo(model)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("%s: %w", model, err)
	}
	sess, err := ort.NewAdvancedSession(model,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out},
		nil,
	)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("%s: %w", model, err)
	}
	return &onnxStage{in: in, out: out, sess: sess}, nil
}

func (s *onnxStage) input() []float32  { return s.in.GetData() }
func (s *onnxStage) output() []float32 { return s.out.GetData() }
func (s *onnxStage) run() error        { return s.sess.Run() }

func (s *onnxStage) destroy() {
	s.sess.Destroy()
	s.in.Destroy()
	s.out.Destroy()
}

// Compile-time interface check.
var _ WakeScorer = (*WakeGate)(nil)

// WakeGate scores utterances with the openWakeWord ONNX pipeline:
// melspectrogram → embedding → wakeword.
type WakeGate struct {
	log *logger.Logger

	mu        sync.Mutex
	melspec   wakeStage
	embedding wakeStage
	wakeword  wakeStage
}

// NewWakeGate loads the ONNX runtime and the three models.
func NewWakeGate(cfg WakeConfig, log *logger.Logger) (*WakeGate, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Debug("wake: initializing ONNX runtime (lib=%s)", cfg.OnnxLib)
	ort.SetSharedLibraryPath(cfg.OnnxLib)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnx init: %w", err)
	}

	g := &WakeGate{log: log}
	mel, err := newStage(cfg.MelspecModel, ort.NewShape(1, wakeChunk), ort.NewShape(1, 1, nMelFrames, melBins))
	if err != nil {
		g.Close()
		return nil, err
	}
	g.melspec = mel
	emb, err := newStage(cfg.EmbeddingModel, ort.NewShape(1, melWindowSize, melBins, 1), ort.NewShape(1, 1, 1, embeddingDim))
	if err != nil {
		g.Close()
		return nil, err
	}
	g.embedding = emb
	ww, err := newStage(cfg.WakewordModel, ort.NewShape(1, nEmbedFrames, embeddingDim), ort.NewShape(1, 1))
	if err != nil {
		g.Close()
		return nil, err
	}
	g.wakeword = ww
	log.Info("wake: gate ready (%s)", cfg.WakewordModel)
	return g, nil
}

// Close releases the sessions and the runtime.
func (g *WakeGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range []wakeStage{g.melspec, g.embedding, g.wakeword} {
		if s != nil {
			s.destroy()
		}
	}
	g.melspec, g.embedding, g.wakeword = nil, nil, nil
	_ = ort.DestroyEnvironment()
}

// Score runs the utterance through the pipeline from a clean state and
// returns the highest wakeword score seen. The mel buffer starts full of
// ones, the openWakeWord initial state, so the first chunk already
// yields a score.
func (g *WakeGate) Score(samples []int16) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.wakeword == nil {
		return 0, errors.New("wake gate closed")
	}

	melBuffer := make([]float32, melWindowSize*melBins, melWindowSize*2*melBins)
	for i := range melBuffer {
		melBuffer[i] = 1
	}
	embedBuffer := make([]float32, nEmbedFrames*embeddingDim)
	var best float32

	for off := 0; off+wakeChunk <= len(samples); off += wakeChunk {
		chunk := samples[off : off+wakeChunk]

		inData := g.melspec.input()
		for i, v := range chunk {
			inData[i] = float32(v)
		}
		if err := g.melspec.run(); err != nil {
			return 0, fmt.Errorf("melspec: %w", err)
		}
		melData := g.melspec.output()
		for i := 0; i < nMelFrames*melBins && i < len(melData); i++ {
			melBuffer = append(melBuffer, melData[i]/10.0+2.0)
		}

		for len(melBuffer)/melBins >= melWindowSize {
			copy(g.embedding.input(), melBuffer[:melWindowSize*melBins])
			if err := g.embedding.run(); err != nil {
				return 0, fmt.Errorf("embedding: %w", err)
			}
			copy(embedBuffer, embedBuffer[embeddingDim:])
			copy(embedBuffer[(nEmbedFrames-1)*embeddingDim:], g.embedding.output()[:embeddingDim])

			n := copy(melBuffer, melBuffer[melStepSize*melBins:])
			melBuffer = melBuffer[:n]

			wwData := g.wakeword.input()
			padSlots := nEmbedFrames - recentWindow
			for i := 0; i < padSlots*embeddingDim; i++ {
				wwData[i] = 0
			}
			copy(wwData[padSlots*embeddingDim:], embedBuffer[padSlots*embeddingDim:])
			if err := g.wakeword.run(); err != nil {
				return 0, fmt.Errorf("wakeword: %w", err)
			}
			if score := g.wakeword.output()[0]; score > best {
				best = score
			}
		}
	}

	g.log.Debug("wake: score=%.4f over %d samples", best, len(samples))
	return float64(best), nil
}
