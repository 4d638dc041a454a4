package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

func testLog() *logger.Logger { return logger.New(logger.LevelOff, nil) }

func solidFrame(w, h int, b, g, r byte) *domain.Frame {
	f := &domain.Frame{Width: w, Height: h, BytesPerPixel: BytesPerPixel, Pix: make([]byte, w*h*BytesPerPixel)}
	for i := 0; i < len(f.Pix); i += BytesPerPixel {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = b, g, r, 0xff
	}
	return f
}

func TestBitmapWritePixels(t *testing.T) {
	bm := NewBitmap(4, 3)

	// 2x2 block, source rows padded to 12 bytes, starting at offset 4.
	src := make([]byte, 4+12*2)
	for row := 0; row < 2; row++ {
		for px := 0; px < 2; px++ {
			i := 4 + row*12 + px*BytesPerPixel
			src[i], src[i+1], src[i+2] = 0x10, 0x20, 0x30
		}
	}
	require.NoError(t, bm.WritePixels(Rect{X: 1, Y: 1, Width: 2, Height: 2}, src, 12, 4))

	r, g, b := bm.RGB(1, 1)
	assert.Equal(t, [3]uint8{0x30, 0x20, 0x10}, [3]uint8{r, g, b})
	r, g, b = bm.RGB(2, 2)
	assert.Equal(t, [3]uint8{0x30, 0x20, 0x10}, [3]uint8{r, g, b})
	r, _, _ = bm.RGB(0, 0)
	assert.Zero(t, r)
	r, _, _ = bm.RGB(-1, 10)
	assert.Zero(t, r)
	assert.Equal(t, uint64(1), bm.Version())
}

func TestBitmapWritePixelsValidation(t *testing.T) {
	bm := NewBitmap(4, 4)
	buf := make([]byte, 64)

	assert.Error(t, bm.WritePixels(Rect{X: 2, Y: 0, Width: 4, Height: 1}, buf, 16, 0))
	assert.Error(t, bm.WritePixels(Rect{Width: 4, Height: 4}, buf, 8, 0))
	assert.Error(t, bm.WritePixels(Rect{Width: 4, Height: 4}, buf, 16, 4))
	assert.NoError(t, bm.WritePixels(Rect{Width: 4, Height: 4}, buf, 16, 0))
}

func TestBlitterCreatesSurfaceOnFirstFrame(t *testing.T) {
	var created *Bitmap
	calls := 0
	bl := NewBlitter(testLog(), func(b *Bitmap) {
		created = b
		calls++
	})

	assert.Nil(t, bl.Bitmap())
	require.NoError(t, bl.Blit(nil))
	assert.Nil(t, bl.Bitmap())

	require.NoError(t, bl.Blit(solidFrame(8, 6, 1, 2, 3)))
	require.NotNil(t, created)
	assert.Same(t, created, bl.Bitmap())
	assert.Equal(t, 8, created.Width())
	assert.Equal(t, 6, created.Height())

	require.NoError(t, bl.Blit(solidFrame(8, 6, 9, 9, 200)))
	assert.Equal(t, 1, calls)
	r, _, _ := created.RGB(7, 5)
	assert.Equal(t, uint8(200), r)
	assert.Equal(t, uint64(2), created.Version())
}

func TestBlitterRecreatesSurfaceOnRotation(t *testing.T) {
	var sizes [][2]int
	bl := NewBlitter(testLog(), func(b *Bitmap) {
		sizes = append(sizes, [2]int{b.Width(), b.Height()})
	})

	require.NoError(t, bl.Blit(solidFrame(8, 6, 0, 0, 10)))
	// Same byte count, different shape.
	require.NoError(t, bl.Blit(solidFrame(6, 8, 0, 0, 20)))

	assert.Equal(t, [][2]int{{8, 6}, {6, 8}}, sizes)
	r, _, _ := bl.Bitmap().RGB(5, 7)
	assert.Equal(t, uint8(20), r)
}

func TestBlitterRun(t *testing.T) {
	bl := NewBlitter(testLog(), nil)
	frames := make(chan *domain.Frame, 2)
	frames <- solidFrame(2, 2, 0, 0, 50)
	frames <- solidFrame(2, 2, 0, 0, 60)
	close(frames)

	bl.Run(context.Background(), frames)
	r, _, _ := bl.Bitmap().RGB(0, 0)
	assert.Equal(t, uint8(60), r)
}

func TestPatternSource(t *testing.T) {
	format := domain.ColorFormat{Width: 14, Height: 2, FPS: 200, BytesPerPixel: 4}
	src := NewPatternSource(format, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	frames, err := src.Frames(ctx)
	require.NoError(t, err)

	select {
	case f := <-frames:
		assert.Equal(t, 14, f.Width)
		assert.Equal(t, f.PixelDataLength(), len(f.Pix))
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from pattern source")
	}

	cancel()
	for range frames {
	}
}

func TestDirSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, color.RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, afero.WriteFile(fs, "frames/001.png", buf.Bytes(), 0o644))
	require.NoError(t, afero.WriteFile(fs, "frames/notes.txt", []byte("ignored"), 0o644))

	src, err := NewDirSource(fs, "frames", 100, testLog())
	require.NoError(t, err)
	assert.Equal(t, 1, src.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames, err := src.Frames(ctx)
	require.NoError(t, err)

	f := <-frames
	assert.Equal(t, 3, f.Width)
	assert.Equal(t, 2, f.Height)
	assert.Equal(t, []byte{0xcc, 0xbb, 0xaa, 0xff}, f.Pix[:4])
}

func TestDirSourceEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("empty", 0o755))

	_, err := NewDirSource(fs, "empty", 30, testLog())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewDirSource(fs, "missing", 30, testLog())
	assert.Error(t, err)
}
