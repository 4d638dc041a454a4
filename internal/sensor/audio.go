package sensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// Capture format expected by the speech engine.
const (
	SampleRate    = 16000
	BitsPerSample = 16
	Channels      = 1
)

const (
	audioQueueCap = 32
	wavChunk      = 1600 // 100 ms @ 16 kHz
	// trailingSilence is appended after a replayed file so the last
	// utterance is closed by the segmenter.
	trailingSilence = time.Second
)

// Compile-time interface checks.
var (
	_ domain.AudioSource = (*MicSource)(nil)
	_ domain.AudioSource = (*WAVSource)(nil)
)

// MicSource captures a microphone through miniaudio.
type MicSource struct {
	device *malgo.DeviceID // nil selects the system default
	log    *logger.Logger
	drops  atomic.Int64
}

// NewMicSource creates a capture source for the given device.
func NewMicSource(device *malgo.DeviceID, log *logger.Logger) *MicSource {
	return &MicSource{device: device, log: log}
}

// Start opens the device and returns the PCM stream. Closing the stream
// or cancelling ctx stops the device.
func (m *MicSource) Start(ctx context.Context) (io.ReadCloser, error) {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(_ string) {})
	if err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = SampleRate
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = Channels
	devCfg.Alsa.NoMMap = 1
	if m.device != nil {
		devCfg.Capture.DeviceID = m.device.Pointer()
	}

	chunks := make(chan []byte, audioQueueCap)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			buf := make([]byte, len(raw))
			copy(buf, raw)
			select {
			case chunks <- buf:
			default:
				m.drops.Add(1)
			}
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		_ = mCtx.Uninit()
		mCtx.Free()
		return nil, fmt.Errorf("audio device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mCtx.Uninit()
		mCtx.Free()
		return nil, fmt.Errorf("audio start: %w", err)
	}
	m.log.Debug("sensor: audio capture started (rate=%d, bits=%d, channels=%d)", SampleRate, BitsPerSample, Channels)

	pr, pw := io.Pipe()
	stream := &captureStream{PipeReader: pr, stopped: make(chan struct{})}
	stream.stop = func() {
		close(stream.stopped)
		_ = device.Stop()
		device.Uninit()
		_ = mCtx.Uninit()
		mCtx.Free()
		if n := m.drops.Load(); n > 0 {
			m.log.Warn("sensor: audio capture stopped, %d buffers dropped by a slow reader", n)
		} else {
			m.log.Debug("sensor: audio capture stopped")
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				stream.shutdown()
				pw.CloseWithError(io.EOF)
				return
			case <-stream.stopped:
				return
			case buf := <-chunks:
				if _, err := pw.Write(buf); err != nil {
					stream.shutdown()
					return
				}
			}
		}
	}()
	return stream, nil
}

// captureStream releases the device exactly once, on Close or when the
// capture context ends.
type captureStream struct {
	*io.PipeReader
	stop    func()
	stopped chan struct{}
	once    sync.Once
}

func (s *captureStream) shutdown() { s.once.Do(s.stop) }

func (s *captureStream) Close() error {
	s.shutdown()
	return s.PipeReader.Close()
}

// WAVSource replays a 16 kHz, 16-bit, mono WAV file as if it were live.
type WAVSource struct {
	fs       afero.Fs
	path     string
	realtime bool
	log      *logger.Logger
}

// NewWAVSource creates a replay source. With realtime set, samples are
// delivered at the file's own pace.
func NewWAVSource(fs afero.Fs, path string, realtime bool, log *logger.Logger) *WAVSource {
	return &WAVSource{fs: fs, path: path, realtime: realtime, log: log}
}

// Path returns the replayed file.
func (w *WAVSource) Path() string { return w.path }

// Start validates the file and streams it as little-endian PCM.
func (w *WAVSource) Start(ctx context.Context) (io.ReadCloser, error) {
	file, err := w.fs.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", w.path, err)
	}

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", domain.ErrConfiguration, w.path)
	}
	if dec.SampleRate != SampleRate || dec.NumChans != Channels || dec.BitDepth != BitsPerSample {
		file.Close()
		return nil, fmt.Errorf("%w: %s is %d Hz / %d-bit / %d ch, want %d Hz / %d-bit / mono",
			domain.ErrConfiguration, w.path, dec.SampleRate, dec.BitDepth, dec.NumChans,
			SampleRate, BitsPerSample)
	}

	pr, pw := io.Pipe()
	go func() {
		defer file.Close()
		pw.CloseWithError(w.pump(ctx, dec, pw))
	}()
	w.log.Debug("sensor: replaying %s (realtime=%v)", w.path, w.realtime)
	return pr, nil
}

func (w *WAVSource) pump(ctx context.Context, dec *wav.Decoder, out io.Writer) error {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:   make([]int, wavChunk),
	}
	raw := make([]byte, wavChunk*2)
	chunkDur := time.Second * wavChunk / SampleRate

	write := func(n int) error {
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(buf.Data[i])))
		}
		if _, err := out.Write(raw[:n*2]); err != nil {
			return err
		}
		if w.realtime {
			select {
			case <-time.After(chunkDur * time.Duration(n) / wavChunk):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := dec.PCMBuffer(buf)
		if err != nil && err != io.EOF {
			return fmt.Errorf("decoding %s: %w", w.path, err)
		}
		if n == 0 {
			break
		}
		if err := write(n); err != nil {
			return err
		}
	}

	for i := range buf.Data {
		buf.Data[i] = 0
	}
	for sent := time.Duration(0); sent < trailingSilence; sent += chunkDur {
		if err := write(wavChunk); err != nil {
			return err
		}
	}
	return nil
}
