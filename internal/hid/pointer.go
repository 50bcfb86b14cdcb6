package hid

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/canonical/yarf/internal/config"
	"github.com/canonical/yarf/internal/cv"
	"github.com/canonical/yarf/internal/fault"
	"github.com/canonical/yarf/internal/logging"
	"github.com/canonical/yarf/internal/rfb"
)

// Conn is the transport capability the synthesizer needs.
type Conn interface {
	SendEvents(events []rfb.Event) error
}

// Pointer buttons, re-exported so callers need not touch the wire layer.
const (
	ButtonLeft   = rfb.ButtonLeft
	ButtonMiddle = rfb.ButtonMiddle
	ButtonRight  = rfb.ButtonRight
	ScrollUp     = rfb.ButtonUp
	ScrollDown   = rfb.ButtonDown
)

// Pointer synthesizes pointer input. Position and held buttons are
// tracked locally; every event carries the full button mask so held
// buttons survive movement.
type Pointer struct {
	conn    Conn
	layout  *cv.Layout
	matcher *cv.Matcher
	cfg     config.PointerConfig
	log     *zap.Logger

	mu    sync.Mutex
	x, y  int
	mask  uint8
	order []uint8
}

// NewPointer starts at (0, 0) with no buttons held.
func NewPointer(conn Conn, layout *cv.Layout, matcher *cv.Matcher, cfg config.PointerConfig) *Pointer {
	return &Pointer{
		conn:    conn,
		layout:  layout,
		matcher: matcher,
		cfg:     cfg,
		log:     logging.NewLogger("pointer"),
	}
}

// Position returns the tracked pointer position in framebuffer
// coordinates.
func (p *Pointer) Position() (x, y int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x, p.y
}

// toFramebuffer maps display-local coordinates to framebuffer
// coordinates, clamping into the display rectangle. The far edge is
// inclusive: (width, height) is a valid position, so a proportional move
// to (1, 1) resolves to exactly width*1, height*1.
func (p *Pointer) toFramebuffer(display string, x, y int) (int, int, error) {
	rect, err := p.layout.Rect(display)
	if err != nil {
		return 0, 0, err
	}
	x = clamp(x, 0, rect.Dx())
	y = clamp(y, 0, rect.Dy())
	return rect.Min.X + x, rect.Min.Y + y, nil
}

// MoveAbsolute moves to (x, y) on the named display, default when empty.
// Coordinates outside the display clamp to its edges.
func (p *Pointer) MoveAbsolute(display string, x, y int) error {
	fx, fy, err := p.toFramebuffer(display, x, y)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moveLocked(fx, fy)
}

// MoveProportional moves to fractional display coordinates: (0.5, 0.5) is
// the center regardless of resolution. Fractions round to the nearest
// pixel, so the mapping is stable under repetition.
func (p *Pointer) MoveProportional(display string, fx, fy float64) error {
	w, h, err := p.layout.Size(display)
	if err != nil {
		return err
	}
	return p.MoveAbsolute(display, int(math.Round(fx*float64(w))), int(math.Round(fy*float64(h))))
}

// moveLocked emits one pointer event at framebuffer (x, y) with the
// current button mask. Caller holds p.mu.
func (p *Pointer) moveLocked(x, y int) error {
	if err := p.conn.SendEvents([]rfb.Event{rfb.PointerEvent{X: x, Y: y, Buttons: p.mask}}); err != nil {
		return err
	}
	p.x, p.y = x, y
	return nil
}

// WalkTo moves to (x, y) on the named display through evenly spaced
// intermediate positions, one event per step with interval between them.
// The current position is not re-emitted and the final event lands on the
// destination exactly. One step or fewer degenerates to a single
// MoveAbsolute; a zero interval takes the configured default.
func (p *Pointer) WalkTo(display string, x, y, steps int, interval time.Duration) error {
	if steps < 0 {
		return fault.Configf("walk steps %d negative", steps)
	}
	if steps <= 1 {
		return p.MoveAbsolute(display, x, y)
	}
	if interval == 0 {
		interval = p.cfg.WalkInterval
	}

	fx, fy, err := p.toFramebuffer(display, x, y)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	startX, startY := p.x, p.y
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		sx := startX + int(math.Round(t*float64(fx-startX)))
		sy := startY + int(math.Round(t*float64(fy-startY)))
		if err := p.moveLocked(sx, sy); err != nil {
			return err
		}
		if i < steps {
			time.Sleep(interval)
		}
	}
	return nil
}

// Press holds a button down at the current position. Pressing a held
// button is a no-op.
func (p *Pointer) Press(button uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mask&button != 0 {
		return nil
	}
	if err := p.conn.SendEvents([]rfb.Event{rfb.PointerEvent{X: p.x, Y: p.y, Buttons: p.mask | button}}); err != nil {
		return err
	}
	p.mask |= button
	p.order = append(p.order, button)
	return nil
}

// Release lets go of a held button. Releasing an unheld button is a
// no-op.
func (p *Pointer) Release(button uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseLocked(button)
}

func (p *Pointer) releaseLocked(button uint8) error {
	if p.mask&button == 0 {
		return nil
	}
	if err := p.conn.SendEvents([]rfb.Event{rfb.PointerEvent{X: p.x, Y: p.y, Buttons: p.mask &^ button}}); err != nil {
		return err
	}
	p.mask &^= button
	for i, b := range p.order {
		if b == button {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return nil
}

// Click presses and releases a button at the current position.
func (p *Pointer) Click(button uint8) error {
	if err := p.Press(button); err != nil {
		return err
	}
	return p.Release(button)
}

// ReleaseAll releases every held button in the order it was pressed.
func (p *Pointer) ReleaseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.order) > 0 {
		if err := p.releaseLocked(p.order[0]); err != nil {
			return err
		}
	}
	return nil
}

// ClickOn moves to the target in a single event and left-clicks it.
// Locator targets search the screen first and propagate their
// NotFoundError.
func (p *Pointer) ClickOn(target Target) error {
	display, x, y, err := target.resolve(p)
	if err != nil {
		return err
	}
	if err := p.MoveAbsolute(display, x, y); err != nil {
		return err
	}
	p.log.Debug("click", zap.Int("x", x), zap.Int("y", y))
	return p.Click(ButtonLeft)
}

// DragTo presses the left button at the current position, walks to the
// target and releases there.
func (p *Pointer) DragTo(target Target) error {
	display, x, y, err := target.resolve(p)
	if err != nil {
		return err
	}
	if err := p.Press(ButtonLeft); err != nil {
		return err
	}
	if err := p.WalkTo(display, x, y, p.cfg.WalkSteps, p.cfg.WalkInterval); err != nil {
		// Leave no button stuck behind a failed walk.
		releaseErr := p.Release(ButtonLeft)
		if releaseErr != nil {
			p.log.Warn("release after failed drag", zap.Error(releaseErr))
		}
		return err
	}
	return p.Release(ButtonLeft)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
