package wait

import (
	"fmt"
	"image"
	"time"

	"github.com/canonical/yarf/internal/fault"
)

// maxStillDelta is the per-channel pixel difference below which two frames
// are considered identical. Lossless transports produce exact frames, but a
// small allowance keeps the detector usable over endpoints that dither.
const maxStillDelta = 2

// Still captures frames every screenshotInterval for up to duration,
// holding a rolling window of the most recent frames covering
// stillDuration. It returns nil the moment every frame in a full window is
// pixel-identical (within maxStillDelta), and fault.TimeoutError if
// duration elapses first.
//
// Unlike a failed match, an unsettled screen is an expected outcome, which
// is why this is the one search that raises TimeoutError rather than
// NotFoundError.
func Still(duration, stillDuration, screenshotInterval time.Duration, grab func() (*image.RGBA, error)) error {
	if stillDuration <= 0 || screenshotInterval <= 0 {
		return fault.Configf("still_duration and screenshot_interval must be positive")
	}
	if stillDuration > duration {
		return fault.Configf("still_duration %v exceeds total duration %v", stillDuration, duration)
	}

	// Number of frames needed so the window spans stillDuration.
	windowSize := int(stillDuration/screenshotInterval) + 1

	var window []*image.RGBA
	start := time.Now()
	err := Until(screenshotInterval, duration, func() (bool, error) {
		frame, err := grab()
		if err != nil {
			return false, err
		}
		window = append(window, frame)
		if len(window) > windowSize {
			window = window[1:]
		}
		return len(window) == windowSize && windowStill(window), nil
	})
	if err == ErrExhausted {
		return &fault.TimeoutError{
			Op:      "wait for stillness",
			Elapsed: fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
		}
	}
	return err
}

func windowStill(window []*image.RGBA) bool {
	first := window[0]
	for _, frame := range window[1:] {
		if !framesEqual(first, frame) {
			return false
		}
	}
	return true
}

func framesEqual(a, b *image.RGBA) bool {
	if a.Bounds() != b.Bounds() {
		return false
	}
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < -maxStillDelta || d > maxStillDelta {
			return false
		}
	}
	return true
}
