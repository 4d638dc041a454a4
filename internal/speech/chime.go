package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// Compile-time interface check.
var _ domain.CommandHandler = (*Chime)(nil)

// chimeRate is the playback rate of generated tones.
const chimeRate = 16000

// Tone is one beep.
type Tone struct {
	Freq     float64
	Duration time.Duration
}

// Pattern returns the tones acknowledging cmd.
func Pattern(cmd domain.VoiceCommand) []Tone {
	switch cmd {
	case domain.TakeOff:
		return []Tone{{660, 90 * time.Millisecond}, {880, 120 * time.Millisecond}}
	case domain.Land:
		return []Tone{{880, 90 * time.Millisecond}, {660, 120 * time.Millisecond}}
	case domain.EmergencyLanding:
		return []Tone{{988, 80 * time.Millisecond}, {988, 80 * time.Millisecond}, {988, 80 * time.Millisecond}}
	default:
		return []Tone{{330, 150 * time.Millisecond}}
	}
}

// Synthesize renders tones as signed 16-bit little-endian mono PCM with
// a short gap after each tone and a linear fade to avoid clicks.
func Synthesize(tones []Tone, rate int) []byte {
	gap := rate / 25 // 40 ms
	var buf bytes.Buffer
	for _, t := range tones {
		n := int(t.Duration * time.Duration(rate) / time.Second)
		fade := n / 10
		for i := 0; i < n; i++ {
			amp := 0.35
			if fade > 0 {
				if i < fade {
					amp *= float64(i) / float64(fade)
				} else if i >= n-fade {
					amp *= float64(n-1-i) / float64(fade)
				}
			}
			v := int16(amp * 32767 * math.Sin(2*math.Pi*t.Freq*float64(i)/float64(rate)))
			_ = binary.Write(&buf, binary.LittleEndian, v)
		}
		buf.Write(make([]byte, gap*2))
	}
	return buf.Bytes()
}

// Chime plays an acknowledgement through the system audio output when a
// command is accepted.
type Chime struct {
	ctx    *oto.Context
	log    *logger.Logger
	mu     sync.Mutex
	active *oto.Player // currently playing, nil when idle
}

// NewChime initializes the audio output. Returns an error if the device
// is unavailable.
func NewChime(log *logger.Logger) (*Chime, error) {
	op := &oto.NewContextOptions{
		SampleRate:   chimeRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	log.Debug("chime: audio output initialized (rate=%d)", chimeRate)
	return &Chime{ctx: ctx, log: log}, nil
}

// Handle plays the pattern for cmd without blocking the dispatcher.
// A newer chime interrupts one still playing.
func (c *Chime) Handle(ctx context.Context, cmd domain.VoiceCommand) error {
	pcm := Synthesize(Pattern(cmd), chimeRate)
	c.Stop()

	player := c.ctx.NewPlayer(bytes.NewReader(pcm))
	c.mu.Lock()
	c.active = player
	c.mu.Unlock()

	player.Play()
	c.log.Debug("chime: %s (%d bytes)", cmd, len(pcm))

	go func() {
		for player.IsPlaying() {
			time.Sleep(10 * time.Millisecond)
		}
		c.mu.Lock()
		if c.active == player {
			c.active = nil
		}
		c.mu.Unlock()
		_ = player.Close()
	}()
	return nil
}

// Stop interrupts the chime, if any. Safe to call when idle.
func (c *Chime) Stop() {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	if active != nil {
		active.Pause()
	}
}
