package picar

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// SheetConfig defines the layout of a contact sheet.
type SheetConfig struct {
	Columns    int        // Thumbnails per row
	ThumbWidth int        // Thumbnail width in pixels; height keeps the aspect ratio
	MaxThumbs  int        // Samples shown, picked evenly across the run; DefaultMaxThumbs when <= 0
	Background color.RGBA // Background color
	Foreground color.RGBA // Caption color
}

// DefaultMaxThumbs caps a sheet when SheetConfig.MaxThumbs is unset.
const DefaultMaxThumbs = 48

// DefaultSheetConfig returns a four-column sheet of 160px thumbnails.
func DefaultSheetConfig() SheetConfig {
	return SheetConfig{
		Columns:    4,
		ThumbWidth: 160,
		MaxThumbs:  DefaultMaxThumbs,
		Background: color.RGBA{0, 0, 0, 255},
		Foreground: color.RGBA{255, 255, 255, 255},
	}
}

const captionHeight = 16

// pickEvenly returns at most k of files spread evenly from first to last.
func pickEvenly(files []string, k int) []string {
	n := len(files)
	if k >= n {
		return files
	}
	if k <= 1 {
		return files[:k]
	}
	out := make([]string, k)
	for i := range out {
		out[i] = files[i*(n-1)/(k-1)]
	}
	return out
}

// ContactSheet lays out sample files from dir as thumbnails with their
// angle and speed stamped underneath. Long runs are thinned to
// cfg.MaxThumbs samples, and only one full-size frame is decoded at a time.
func ContactSheet(dir string, files []string, cfg SheetConfig) (*image.RGBA, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no samples to lay out")
	}
	if cfg.Columns < 1 {
		cfg.Columns = 1
	}
	if cfg.ThumbWidth < 8 {
		cfg.ThumbWidth = 8
	}
	if cfg.MaxThumbs <= 0 {
		cfg.MaxThumbs = DefaultMaxThumbs
	}

	picked := pickEvenly(files, cfg.MaxThumbs)
	infos := make([]SampleInfo, len(picked))
	for i, name := range picked {
		info, err := ParseSampleFileName(filepath.Base(name), time.Local)
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}

	img, err := loadImage(filepath.Join(dir, picked[0]))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	thumbHeight := cfg.ThumbWidth * b.Dy() / max(b.Dx(), 1)
	cellHeight := thumbHeight + captionHeight
	rows := (len(picked) + cfg.Columns - 1) / cfg.Columns

	sheet := image.NewRGBA(image.Rect(0, 0, cfg.Columns*cfg.ThumbWidth, rows*cellHeight))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(cfg.Background), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  sheet,
		Src:  image.NewUniform(cfg.Foreground),
		Face: basicfont.Face7x13,
	}

	for i, name := range picked {
		if i > 0 {
			if img, err = loadImage(filepath.Join(dir, name)); err != nil {
				return nil, err
			}
		}

		x := (i % cfg.Columns) * cfg.ThumbWidth
		y := (i / cfg.Columns) * cellHeight

		dst := image.Rect(x, y, x+cfg.ThumbWidth, y+thumbHeight)
		draw.ApproxBiLinear.Scale(sheet, dst, img, img.Bounds(), draw.Src, nil)

		drawer.Dot = fixed.Point26_6{
			X: fixed.I(x + 2),
			Y: fixed.I(y + thumbHeight + captionHeight - 3),
		}
		drawer.DrawString(fmt.Sprintf("a%d s%d", infos[i].SteeringAngle, infos[i].Speed))
	}

	return sheet, nil
}

// WriteContactSheet renders a contact sheet and saves it as PNG.
func WriteContactSheet(path, dir string, files []string, cfg SheetConfig) error {
	sheet, err := ContactSheet(dir, files, cfg)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, sheet)
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
