package picar

import (
	"fmt"
	"image"
	"image/color"
	"regexp"
	"strings"

	"golang.org/x/image/draw"
)

const (
	upperHalfBlock = "▀"
	ansiReset      = "\x1b[0m"
)

// FrameToANSI renders img into cols x rows terminal cells using truecolor
// upper half blocks: each cell carries two vertically stacked pixels, the
// top one as foreground and the bottom one as background.
func FrameToANSI(img image.Image, cols, rows int) string {
	if img == nil || cols <= 0 || rows <= 0 {
		return ""
	}

	small := image.NewRGBA(image.Rect(0, 0, cols, rows*2))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var b strings.Builder
	b.Grow(cols * rows * 40)

	for y := 0; y < rows; y++ {
		var lastTop, lastBottom color.RGBA
		first := true
		for x := 0; x < cols; x++ {
			top := small.RGBAAt(x, 2*y)
			bottom := small.RGBAAt(x, 2*y+1)
			if first || top != lastTop {
				fmt.Fprintf(&b, "\x1b[38;2;%d;%d;%dm", top.R, top.G, top.B)
			}
			if first || bottom != lastBottom {
				fmt.Fprintf(&b, "\x1b[48;2;%d;%d;%dm", bottom.R, bottom.G, bottom.B)
			}
			b.WriteString(upperHalfBlock)
			lastTop, lastBottom, first = top, bottom, false
		}
		b.WriteString(ansiReset)
		if y < rows-1 {
			b.WriteByte('\n')
		}
	}

	return b.String()
}

// FitCells returns the largest cell grid within maxCols x maxRows that keeps
// the aspect ratio of bounds. A cell is one pixel wide and two pixels tall.
func FitCells(bounds image.Rectangle, maxCols, maxRows int) (int, int) {
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || maxCols <= 0 || maxRows <= 0 {
		return 0, 0
	}

	cols := maxCols
	rows := cols * h / w / 2
	if rows > maxRows {
		rows = maxRows
		cols = rows * 2 * w / h
	}
	return max(cols, 1), max(rows, 1)
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences.
func StripANSI(text string) string {
	return ansiRegex.ReplaceAllString(text, "")
}
