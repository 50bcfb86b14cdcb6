package session

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/yarf/internal/config"
	"github.com/canonical/yarf/internal/cv"
	"github.com/canonical/yarf/internal/fault"
	"github.com/canonical/yarf/internal/hid"
	"github.com/canonical/yarf/internal/rfb/rfbtest"
)

func testConfig(t *testing.T, addr string) *config.Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Server.Host = host
	cfg.Server.Port = port
	cfg.Server.ConnectTimeout = 2 * time.Second
	cfg.Server.CallTimeout = 2 * time.Second
	cfg.Match.Timeout = 500 * time.Millisecond
	cfg.Match.Interval = 20 * time.Millisecond
	cfg.Pointer.WalkSteps = 3
	cfg.Pointer.WalkInterval = 0
	return cfg
}

func redPatchFrame(w, h, x, y int) (*image.RGBA, *image.RGBA) {
	frame := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(frame, frame.Bounds(), &image.Uniform{C: color.RGBA{R: 255, G: 255, B: 255, A: 255}}, image.Point{}, draw.Src)
	patch := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(patch, patch.Bounds(), &image.Uniform{C: color.RGBA{R: 255, A: 255}}, image.Point{}, draw.Src)
	draw.Draw(frame, patch.Bounds().Add(image.Pt(x, y)), patch, image.Point{}, draw.Src)
	return frame, patch
}

func writeTemplate(t *testing.T, dir string, img *image.RGBA) string {
	t.Helper()
	path := filepath.Join(dir, "target.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return "target.png"
}

func newTestSession(t *testing.T, srv *rfbtest.Server, templateDir string) *Session {
	t.Helper()
	s, err := New(context.Background(), testConfig(t, srv.Addr()), Options{TemplateDir: templateDir})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionCapture(t *testing.T) {
	srv, err := rfbtest.Start(64, 48)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv, t.TempDir())
	frame, err := s.Capture("")
	require.NoError(t, err)
	assert.Equal(t, 64, frame.Width)
	assert.Equal(t, 48, frame.Height)
}

func TestSessionRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Match.Method = "orb"
	_, err := New(context.Background(), cfg, Options{})
	var ce *fault.ConfigurationError
	require.ErrorAs(t, err, &ce)
}

func TestSessionMatchTemplate(t *testing.T) {
	srv, err := rfbtest.Start(64, 48)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	frame, patch := redPatchFrame(64, 48, 20, 12)
	srv.SetFrame(frame)

	dir := t.TempDir()
	ref := writeTemplate(t, dir, patch)

	s := newTestSession(t, srv, dir)
	result, err := s.Match(ref)
	require.NoError(t, err)
	assert.Equal(t, cv.Region{Left: 20, Top: 12, Right: 28, Bottom: 20}, result.Region)
	assert.InDelta(t, 100, result.Similarity, 0.5)
}

func TestSessionMatchAppearsLater(t *testing.T) {
	srv, err := rfbtest.Start(64, 48)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	frame, patch := redPatchFrame(64, 48, 10, 10)
	srv.FrameHook = func(n int) *image.RGBA {
		if n >= 3 {
			return frame
		}
		return nil
	}

	dir := t.TempDir()
	ref := writeTemplate(t, dir, patch)

	s := newTestSession(t, srv, dir)
	result, err := s.Match(ref)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Region.Left)
}

func TestSessionClickOnTemplate(t *testing.T) {
	srv, err := rfbtest.Start(64, 48)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	frame, patch := redPatchFrame(64, 48, 20, 12)
	srv.SetFrame(frame)

	dir := t.TempDir()
	writeTemplate(t, dir, patch)

	s := newTestSession(t, srv, dir)
	tpl, err := s.ResolveTemplate("target.png")
	require.NoError(t, err)
	require.NoError(t, s.ClickOn(hid.OnTemplate(tpl)))

	require.Eventually(t, func() bool {
		pointers := srv.Pointers()
		if len(pointers) < 2 {
			return false
		}
		last := pointers[len(pointers)-1]
		// Click lands on the patch center with the button released again.
		return last.X == 24 && last.Y == 16 && last.Buttons == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSessionTypeString(t *testing.T) {
	srv, err := rfbtest.Start(32, 32)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv, t.TempDir())
	require.NoError(t, s.TypeString("abc"))

	require.Eventually(t, func() bool {
		return len(srv.Keys()) == 6
	}, 2*time.Second, 20*time.Millisecond)

	keys := srv.Keys()
	assert.Equal(t, uint32(30), keys[0].Code)
	assert.True(t, keys[0].Press)
	assert.Equal(t, uint32(48), keys[2].Code)
	assert.Equal(t, uint32(46), keys[4].Code)
}

func TestSessionWaitStill(t *testing.T) {
	srv, err := rfbtest.Start(32, 32)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv, t.TempDir())
	err = s.WaitStill("", 500*time.Millisecond, 60*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)
}

func TestSessionClosedRejectsCalls(t *testing.T) {
	srv, err := rfbtest.Start(32, 32)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv, t.TempDir())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Capture("")
	var ce *fault.ConfigurationError
	require.ErrorAs(t, err, &ce)
}
