package hid

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/canonical/yarf/internal/config"
	"github.com/canonical/yarf/internal/cv"
	"github.com/canonical/yarf/internal/fault"
	"github.com/canonical/yarf/internal/logging"
	"github.com/canonical/yarf/internal/rfb"
	"github.com/canonical/yarf/internal/wait"
)

// Keyboard synthesizes key input through the default character map.
type Keyboard struct {
	conn    Conn
	matcher *cv.Matcher
	cfg     config.MatchConfig
	log     *zap.Logger
}

// NewKeyboard binds a transport and, for the wait-for-match combos, a
// matcher with its retry defaults.
func NewKeyboard(conn Conn, matcher *cv.Matcher, cfg config.MatchConfig) *Keyboard {
	return &Keyboard{
		conn:    conn,
		matcher: matcher,
		cfg:     cfg,
		log:     logging.NewLogger("keyboard"),
	}
}

// TypeString types the text character by character. Shifted glyphs are
// wrapped in their own shift press and release, so every emitted sequence
// is well nested. An unmapped character fails before anything is sent.
func (k *Keyboard) TypeString(text string) error {
	var events []rfb.Event
	for _, r := range text {
		key, err := lookupChar(r)
		if err != nil {
			return err
		}
		if key.Shift {
			events = append(events, rfb.KeyEvent{Code: codeLeftShift, Press: true})
		}
		events = append(events,
			rfb.KeyEvent{Code: key.Code, Press: true},
			rfb.KeyEvent{Code: key.Code, Press: false},
		)
		if key.Shift {
			events = append(events, rfb.KeyEvent{Code: codeLeftShift, Press: false})
		}
	}
	k.log.Debug("type string", zap.Int("chars", len(text)))
	return k.conn.SendEvents(events)
}

// KeysCombo presses the named keys in order and releases them in reverse,
// like a person holding a chord. Unknown names fail before anything is
// sent.
func (k *Keyboard) KeysCombo(names ...string) error {
	if len(names) == 0 {
		return fault.Configf("empty key combo")
	}
	codes := make([]uint32, len(names))
	for i, name := range names {
		code, err := lookupName(name)
		if err != nil {
			return err
		}
		codes[i] = code
	}

	events := make([]rfb.Event, 0, len(codes)*2)
	for _, code := range codes {
		events = append(events, rfb.KeyEvent{Code: code, Press: true})
	}
	for i := len(codes) - 1; i >= 0; i-- {
		events = append(events, rfb.KeyEvent{Code: codes[i], Press: false})
	}
	k.log.Debug("key combo", zap.Strings("keys", names))
	return k.conn.SendEvents(events)
}

// PressAndWaitForMatch emits the combo, then re-emits it once per retry
// interval until the template appears or the deadline passes. WithTimeout
// and WithInterval bound the whole loop; each emission is followed by a
// single match attempt against the current screen. Some surfaces only
// react to repeated input, a popup dismissed with ESC that takes a
// moment to open being the usual case.
func (k *Keyboard) PressAndWaitForMatch(combo []string, tpl cv.Template, opts ...cv.Option) error {
	if k.matcher == nil {
		return fault.Configf("no matcher available for wait-for-match combo")
	}
	interval, timeout := cv.Timing(k.cfg.Interval, k.cfg.Timeout, opts...)
	probe := append(append([]cv.Option{}, opts...), cv.WithTimeout(0))

	start := time.Now()
	err := wait.Until(interval, timeout, func() (bool, error) {
		if err := k.KeysCombo(combo...); err != nil {
			return false, err
		}
		_, err := k.matcher.Match(tpl, probe...)
		var nf *fault.NotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
	if errors.Is(err, wait.ErrExhausted) {
		return &fault.NotFoundError{
			Targets:     []string{tpl.Name},
			ElapsedText: fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
		}
	}
	return err
}
