package camera

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/picar"
)

func TestPattern_FrameLimit(t *testing.T) {
	p := NewPattern(WithFrameLimit(3), WithSize(32, 24))
	require.True(t, p.IsOpen())

	var last time.Time
	for i := 0; i < 3; i++ {
		f, err := p.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 32, 24), f.Image.Bounds())
		assert.False(t, f.Timestamp.Before(last))
		last = f.Timestamp
	}

	_, err := p.ReadFrame()
	assert.ErrorIs(t, err, picar.ErrStreamEnded)
	assert.Equal(t, 3, p.Frames())
}

func TestPattern_Release(t *testing.T) {
	p := NewPattern(WithSize(8, 8))
	require.NoError(t, p.Release())

	assert.False(t, p.IsOpen())
	_, err := p.ReadFrame()
	assert.ErrorIs(t, err, picar.ErrStreamEnded)
}

func TestPattern_Pacing(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration

	p := NewPattern(WithSize(8, 8), WithFPS(10), WithClock(func() time.Time { return now }))
	p.sleep = func(d time.Duration) {
		slept = append(slept, d)
		now = now.Add(d)
	}

	_, err := p.ReadFrame()
	require.NoError(t, err)
	_, err = p.ReadFrame()
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{100 * time.Millisecond}, slept)
}

func TestPattern_BarMoves(t *testing.T) {
	p := NewPattern(WithSize(64, 4))

	f0, err := p.ReadFrame()
	require.NoError(t, err)
	f1, err := p.ReadFrame()
	require.NoError(t, err)

	white := color.RGBA{255, 255, 255, 255}
	assert.Equal(t, white, f0.Image.(*image.RGBA).RGBAAt(0, 0))
	assert.NotEqual(t, white, f1.Image.(*image.RGBA).RGBAAt(0, 0))
	assert.Equal(t, white, f1.Image.(*image.RGBA).RGBAAt(8, 0))
}

func writePNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestReplay_PlaysInOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), color.RGBA{0, 255, 0, 255})
	writePNG(t, filepath.Join(dir, "a.png"), color.RGBA{255, 0, 0, 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644))

	r, err := OpenReplay(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Remaining())

	f, err := r.ReadFrame()
	require.NoError(t, err)
	red, _, _, _ := f.Image.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), red)

	f, err = r.ReadFrame()
	require.NoError(t, err)
	_, green, _, _ := f.Image.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), green)

	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, picar.ErrStreamEnded)
}

func TestReplay_EmptyDir(t *testing.T) {
	_, err := OpenReplay(t.TempDir())
	assert.Error(t, err)
}

func TestOpen_Sources(t *testing.T) {
	cam, err := Open(PatternSource, Settings{Width: 16, Height: 8, Frames: 1})
	require.NoError(t, err)
	require.IsType(t, &Pattern{}, cam)
	f, err := cam.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), f.Image.Bounds())
	require.NoError(t, cam.Release())

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), color.RGBA{0, 0, 255, 255})
	cam, err = Open(ReplayPrefix+dir, Settings{})
	require.NoError(t, err)
	assert.IsType(t, &Replay{}, cam)
	require.NoError(t, cam.Release())

	_, err = Open("/dev/picar-no-such-camera", Settings{})
	assert.Error(t, err)
}
