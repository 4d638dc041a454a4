package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/kinectdrone/internal/camera"
)

// RenderPreview draws the bitmap as cols columns of half-block cells.
// Each cell shows two vertically stacked pixels, so a terminal cell's
// 1:2 aspect keeps the image proportions.
func RenderPreview(b *camera.Bitmap, cols int) string {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 || cols <= 0 {
		return ""
	}
	if cols > w {
		cols = w
	}
	rows := cols * h / w / 2
	if rows == 0 {
		rows = 1
	}

	var sb strings.Builder
	for row := 0; row < rows; row++ {
		if row > 0 {
			sb.WriteByte('\n')
		}
		for col := 0; col < cols; col++ {
			x := col * w / cols
			yTop := (2 * row) * h / (2 * rows)
			yBot := (2*row + 1) * h / (2 * rows)
			tr, tg, tb := b.RGB(x, yTop)
			br, bg, bb := b.RGB(x, yBot)
			sb.WriteString(lipgloss.NewStyle().
				Foreground(hexColor(tr, tg, tb)).
				Background(hexColor(br, bg, bb)).
				Render("▀"))
		}
	}
	return sb.String()
}

func hexColor(r, g, b uint8) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r, g, b))
}
