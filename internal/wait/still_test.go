package wait

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/yarf/internal/fault"
)

func solidFrame(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// grabScript returns each scripted frame in turn, repeating the last one.
func grabScript(frames ...*image.RGBA) func() (*image.RGBA, error) {
	i := 0
	return func() (*image.RGBA, error) {
		f := frames[i]
		if i < len(frames)-1 {
			i++
		}
		return f, nil
	}
}

func TestStillSettlesAfterChange(t *testing.T) {
	red := solidFrame(color.RGBA{R: 255, A: 255})
	blue := solidFrame(color.RGBA{B: 255, A: 255})

	err := Still(time.Second, 30*time.Millisecond, 10*time.Millisecond,
		grabScript(red, blue, red, blue, blue))
	require.NoError(t, err)
}

func TestStillTimesOutWhileChanging(t *testing.T) {
	red := solidFrame(color.RGBA{R: 255, A: 255})
	blue := solidFrame(color.RGBA{B: 255, A: 255})
	flip := false
	grab := func() (*image.RGBA, error) {
		flip = !flip
		if flip {
			return red, nil
		}
		return blue, nil
	}

	err := Still(100*time.Millisecond, 40*time.Millisecond, 10*time.Millisecond, grab)
	var timeout *fault.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "wait for stillness", timeout.Op)
}

func TestStillToleratesDither(t *testing.T) {
	base := solidFrame(color.RGBA{R: 100, G: 100, B: 100, A: 255})
	dithered := solidFrame(color.RGBA{R: 102, G: 99, B: 101, A: 255})

	err := Still(time.Second, 30*time.Millisecond, 10*time.Millisecond,
		grabScript(base, dithered, base, dithered))
	require.NoError(t, err)
}

func TestStillRejectsBadParameters(t *testing.T) {
	grab := grabScript(solidFrame(color.RGBA{A: 255}))
	var cfg *fault.ConfigurationError

	err := Still(time.Second, 0, 10*time.Millisecond, grab)
	require.ErrorAs(t, err, &cfg)

	err = Still(time.Second, 30*time.Millisecond, 0, grab)
	require.ErrorAs(t, err, &cfg)

	err = Still(50*time.Millisecond, 100*time.Millisecond, 10*time.Millisecond, grab)
	require.ErrorAs(t, err, &cfg)
}
