package camera

import (
	"context"
	"sync"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// Blitter copies every incoming frame into a Bitmap. The pixel buffer
// and the bitmap are created from the first frame and recreated when
// the frame size changes.
type Blitter struct {
	log *logger.Logger

	mu        sync.Mutex
	pixelData []byte
	bitmap    *Bitmap
	onCreate  func(*Bitmap)
}

// NewBlitter creates a blitter. onCreate, if set, is called with each
// new bitmap.
func NewBlitter(log *logger.Logger, onCreate func(*Bitmap)) *Blitter {
	return &Blitter{log: log, onCreate: onCreate}
}

// Bitmap returns the surface, or nil before the first frame.
func (b *Blitter) Bitmap() *Bitmap {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bitmap
}

// Blit copies one frame. Nil frames are skipped.
func (b *Blitter) Blit(f *domain.Frame) error {
	if f == nil {
		return nil
	}

	b.mu.Lock()
	created := false
	if b.bitmap == nil || b.bitmap.Width() != f.Width || b.bitmap.Height() != f.Height ||
		len(b.pixelData) != f.PixelDataLength() {
		b.pixelData = make([]byte, f.PixelDataLength())
		b.bitmap = NewBitmap(f.Width, f.Height)
		created = true
	}
	bitmap := b.bitmap
	f.CopyPixelDataTo(b.pixelData)
	err := bitmap.WritePixels(Rect{0, 0, f.Width, f.Height}, b.pixelData, f.Width*f.BytesPerPixel, 0)
	b.mu.Unlock()

	if created {
		b.log.Debug("camera: surface created (%dx%d)", f.Width, f.Height)
		if b.onCreate != nil {
			b.onCreate(bitmap)
		}
	}
	return err
}

// Run blits frames until the channel closes or ctx is cancelled.
func (b *Blitter) Run(ctx context.Context, frames <-chan *domain.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := b.Blit(f); err != nil {
				b.log.Warn("camera: blit failed: %v", err)
			}
		}
	}
}
