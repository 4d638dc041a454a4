package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
)

//go:embed banner.txt
var bannerRaw string

// RenderBanner returns the banner art and an optional subtitle line,
// horizontally centred for the current terminal width.
func RenderBanner(subtitle string) string {
	return renderBanner(termWidth(), subtitle)
}

func renderBanner(width int, subtitle string) string {
	lines := strings.Split(strings.TrimRight(bannerRaw, "\n"), "\n")
	if subtitle != "" {
		lines = append(lines, "", subtitle)
	}

	// Centre the block on its widest line.
	maxW := 0
	for _, l := range lines {
		if len(l) > maxW {
			maxW = len(l)
		}
	}
	pad := 0
	if width > maxW {
		pad = (width - maxW) / 2
	}

	var b strings.Builder
	for _, l := range lines {
		if pad > 0 && l != "" {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(BannerStyle.Render(l))
		b.WriteByte('\n')
	}
	return b.String()
}

// termWidth returns the current terminal column count, or 80 as fallback.
func termWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
