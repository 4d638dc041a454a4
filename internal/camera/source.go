package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// frameQueueCap bounds how far a slow consumer may fall behind; frames
// beyond it are dropped.
const frameQueueCap = 2

// Compile-time interface checks.
var (
	_ domain.CameraSource = (*PatternSource)(nil)
	_ domain.CameraSource = (*DirSource)(nil)
)

// PatternSource emits moving color bars, for running without a camera.
type PatternSource struct {
	format domain.ColorFormat
	log    *logger.Logger
}

// NewPatternSource creates a test-pattern source.
func NewPatternSource(format domain.ColorFormat, log *logger.Logger) *PatternSource {
	return &PatternSource{format: format, log: log}
}

var bars = [][3]byte{ // B, G, R
	{0xc0, 0xc0, 0xc0},
	{0x00, 0xc0, 0xc0},
	{0xc0, 0xc0, 0x00},
	{0x00, 0xc0, 0x00},
	{0xc0, 0x00, 0xc0},
	{0x00, 0x00, 0xc0},
	{0xc0, 0x00, 0x00},
}

// Frames starts emitting at the format's frame rate.
func (p *PatternSource) Frames(ctx context.Context) (<-chan *domain.Frame, error) {
	return tick(ctx, p.format.FPS, p.log, func(n int) *domain.Frame {
		return patternFrame(p.format, n)
	}), nil
}

func patternFrame(format domain.ColorFormat, n int) *domain.Frame {
	f := &domain.Frame{
		Width:         format.Width,
		Height:        format.Height,
		BytesPerPixel: BytesPerPixel,
		Pix:           make([]byte, format.Width*format.Height*BytesPerPixel),
		Timestamp:     time.Now(),
	}
	barWidth := format.Width / len(bars)
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < format.Height; y++ {
		for x := 0; x < format.Width; x++ {
			c := bars[((x+n*4)/barWidth)%len(bars)]
			i := (y*format.Width + x) * BytesPerPixel
			f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = c[0], c[1], c[2], 0xff
		}
	}
	return f
}

// DirSource loops over the PNG and JPEG images in a directory.
type DirSource struct {
	fs     afero.Fs
	dir    string
	fps    int
	log    *logger.Logger
	frames []*domain.Frame
}

// NewDirSource loads every image in dir. Images are delivered at their
// native size.
func NewDirSource(fs afero.Fs, dir string, fps int, log *logger.Logger) (*DirSource, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("reading camera dir: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	s := &DirSource{fs: fs, dir: dir, fps: fps, log: log}
	for _, info := range infos {
		ext := strings.ToLower(filepath.Ext(info.Name()))
		if info.IsDir() || (ext != ".png" && ext != ".jpg" && ext != ".jpeg") {
			continue
		}
		f, err := s.load(filepath.Join(dir, info.Name()))
		if err != nil {
			return nil, err
		}
		s.frames = append(s.frames, f)
	}
	if len(s.frames) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", domain.ErrConfiguration, dir)
	}
	log.Debug("camera: loaded %d images from %s", len(s.frames), dir)
	return s, nil
}

func (s *DirSource) load(path string) (*domain.Frame, error) {
	file, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return toBgr32(img), nil
}

// Len returns the number of loaded images.
func (s *DirSource) Len() int { return len(s.frames) }

// Frames starts emitting the images in name order, looping.
func (s *DirSource) Frames(ctx context.Context) (<-chan *domain.Frame, error) {
	return tick(ctx, s.fps, s.log, func(n int) *domain.Frame {
		src := s.frames[n%len(s.frames)]
		f := *src
		f.Timestamp = time.Now()
		return &f
	}), nil
}

func toBgr32(img image.Image) *domain.Frame {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	f := &domain.Frame{Width: w, Height: h, BytesPerPixel: BytesPerPixel, Pix: make([]byte, w*h*BytesPerPixel)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := (y*w + x) * BytesPerPixel
			f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = byte(b>>8), byte(g>>8), byte(r>>8), byte(a>>8)
		}
	}
	return f
}

// tick calls next at fps and forwards the frames, dropping them when the
// consumer falls behind.
func tick(ctx context.Context, fps int, log *logger.Logger, next func(n int) *domain.Frame) <-chan *domain.Frame {
	if fps <= 0 {
		fps = 30
	}
	out := make(chan *domain.Frame, frameQueueCap)
	go func() {
		defer close(out)
		t := time.NewTicker(time.Second / time.Duration(fps))
		defer t.Stop()

		drops := 0
		for n := 0; ; n++ {
			select {
			case <-ctx.Done():
				if drops > 0 {
					log.Debug("camera: dropped %d frames", drops)
				}
				return
			case <-t.C:
				select {
				case out <- next(n):
				default:
					drops++
				}
			}
		}
	}()
	return out
}
