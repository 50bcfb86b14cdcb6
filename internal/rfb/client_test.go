package rfb

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/canonical/yarf/internal/fault"
	"github.com/canonical/yarf/internal/rfb/rfbtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testOptions() Options {
	return Options{
		ConnectTimeout: 2 * time.Second,
		CallTimeout:    2 * time.Second,
		Shared:         true,
	}
}

func startServer(t *testing.T, width, height int) *rfbtest.Server {
	t.Helper()
	srv, err := rfbtest.Start(width, height)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func connect(t *testing.T, srv *rfbtest.Server) *Client {
	t.Helper()
	client, err := Connect(context.Background(), srv.Addr(), testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnectHandshake(t *testing.T) {
	srv := startServer(t, 320, 240)
	client := connect(t, srv)

	assert.Equal(t, 320, client.Width())
	assert.Equal(t, 240, client.Height())
}

func TestConnectRefused(t *testing.T) {
	_, err := Connect(context.Background(), "127.0.0.1:1", testOptions())
	var tr *fault.TransportError
	require.ErrorAs(t, err, &tr)
}

func TestCaptureDecodesPixels(t *testing.T) {
	srv := startServer(t, 64, 32)
	frame := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			frame.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 8), B: 7, A: 255})
		}
	}
	srv.SetFrame(frame)

	client := connect(t, srv)
	got, err := client.Capture()
	require.NoError(t, err)
	require.Equal(t, frame.Bounds(), got.Bounds())

	for _, pt := range []image.Point{{X: 0, Y: 0}, {X: 63, Y: 31}, {X: 10, Y: 20}} {
		assert.Equal(t, frame.RGBAAt(pt.X, pt.Y), got.RGBAAt(pt.X, pt.Y), pt)
	}
}

func TestCaptureSeesFrameChanges(t *testing.T) {
	srv := startServer(t, 16, 16)
	client := connect(t, srv)

	first, err := client.Capture()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{}, first.RGBAAt(3, 3))

	updated := image.NewRGBA(image.Rect(0, 0, 16, 16))
	updated.SetRGBA(3, 3, color.RGBA{R: 200, A: 255})
	srv.SetFrame(updated)

	second, err := client.Capture()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 200, A: 255}, second.RGBAAt(3, 3))
}

func TestSendEventsPreservesOrder(t *testing.T) {
	srv := startServer(t, 64, 64)
	client := connect(t, srv)

	err := client.SendEvents([]Event{
		KeyEvent{Code: 42, Press: true},
		KeyEvent{Code: 30, Press: true},
		KeyEvent{Code: 30, Press: false},
		KeyEvent{Code: 42, Press: false},
		PointerEvent{X: 10, Y: 20, Buttons: ButtonLeft},
		PointerEvent{X: 10, Y: 20},
	})
	require.NoError(t, err)

	// The fake server records in arrival order; give it a beat to drain.
	require.Eventually(t, func() bool {
		return len(srv.Keys()) == 4 && len(srv.Pointers()) == 2
	}, time.Second, 10*time.Millisecond)

	keys := srv.Keys()
	assert.Equal(t, []rfbtest.RecordedKey{
		{Code: 42, Press: true},
		{Code: 30, Press: true},
		{Code: 30, Press: false},
		{Code: 42, Press: false},
	}, keys)

	pointers := srv.Pointers()
	assert.Equal(t, rfbtest.RecordedPointer{X: 10, Y: 20, Buttons: ButtonLeft}, pointers[0])
	assert.Equal(t, rfbtest.RecordedPointer{X: 10, Y: 20}, pointers[1])
}

func TestSendEventsEmptyIsNoOp(t *testing.T) {
	srv := startServer(t, 16, 16)
	client := connect(t, srv)
	require.NoError(t, client.SendEvents(nil))
}

func TestClientUnusableAfterClose(t *testing.T) {
	srv := startServer(t, 16, 16)
	client, err := Connect(context.Background(), srv.Addr(), testOptions())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = client.Capture()
	var tr *fault.TransportError
	require.ErrorAs(t, err, &tr)

	err = client.SendEvents([]Event{KeyEvent{Code: 30, Press: true}})
	require.ErrorAs(t, err, &tr)
}

func TestClientBrokenAfterServerGone(t *testing.T) {
	srv := startServer(t, 16, 16)
	client, err := Connect(context.Background(), srv.Addr(), testOptions())
	require.NoError(t, err)
	defer client.Close()

	srv.Close()

	// The first call after the server vanishes fails; so does every call
	// after it, without reconnecting.
	_, err = client.Capture()
	var tr *fault.TransportError
	require.ErrorAs(t, err, &tr)

	_, err = client.Capture()
	require.ErrorAs(t, err, &tr)
}
