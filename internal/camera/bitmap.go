// Package camera delivers color frames from a source and copies them
// into a Bitmap the display reads from.
package camera

import (
	"fmt"
	"sync"
)

// Rect is a pixel rectangle.
type Rect struct {
	X, Y, Width, Height int
}

// Bitmap is a writable Bgr32 surface. Safe for one writer and many readers.
type Bitmap struct {
	mu      sync.RWMutex
	width   int
	height  int
	stride  int
	pix     []byte
	version uint64
}

// BytesPerPixel of the Bgr32 layout.
const BytesPerPixel = 4

// NewBitmap allocates a black width x height surface.
func NewBitmap(width, height int) *Bitmap {
	return &Bitmap{
		width:  width,
		height: height,
		stride: width * BytesPerPixel,
		pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// Width returns the surface width in pixels.
func (b *Bitmap) Width() int { return b.width }

// Height returns the surface height in pixels.
func (b *Bitmap) Height() int { return b.height }

// WritePixels copies rect from pixels, whose rows are stride bytes apart
// and start at offset, into the surface.
func (b *Bitmap) WritePixels(rect Rect, pixels []byte, stride, offset int) error {
	if rect.X < 0 || rect.Y < 0 || rect.Width <= 0 || rect.Height <= 0 ||
		rect.X+rect.Width > b.width || rect.Y+rect.Height > b.height {
		return fmt.Errorf("rect %+v outside %dx%d bitmap", rect, b.width, b.height)
	}
	rowBytes := rect.Width * BytesPerPixel
	if stride < rowBytes {
		return fmt.Errorf("stride %d shorter than row (%d bytes)", stride, rowBytes)
	}
	if offset < 0 || offset+(rect.Height-1)*stride+rowBytes > len(pixels) {
		return fmt.Errorf("buffer of %d bytes too small for rect %+v at stride %d", len(pixels), rect, stride)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for y := 0; y < rect.Height; y++ {
		src := offset + y*stride
		dst := (rect.Y+y)*b.stride + rect.X*BytesPerPixel
		copy(b.pix[dst:dst+rowBytes], pixels[src:src+rowBytes])
	}
	b.version++
	return nil
}

// RGB returns the color at (x, y). Out-of-range coordinates are black.
func (b *Bitmap) RGB(x, y int) (r, g, bl uint8) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return 0, 0, 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := y*b.stride + x*BytesPerPixel
	return b.pix[i+2], b.pix[i+1], b.pix[i]
}

// Version increments on every write; readers use it to skip redraws.
func (b *Bitmap) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}
