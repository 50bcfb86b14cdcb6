// Package session assembles the engine: one transport connection, one
// frame source, one matcher and one input synthesizer behind a single
// facade. A Session is the unit of isolation; concurrent test runs use
// separate sessions against separate endpoints.
package session

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canonical/yarf/internal/config"
	"github.com/canonical/yarf/internal/cv"
	"github.com/canonical/yarf/internal/fault"
	"github.com/canonical/yarf/internal/hid"
	"github.com/canonical/yarf/internal/logging"
	"github.com/canonical/yarf/internal/ocr"
	"github.com/canonical/yarf/internal/rfb"
	"github.com/canonical/yarf/internal/wait"
	"github.com/canonical/yarf/pkg/templates"
)

// Session owns one connection to a remote display and every capability
// built on it. All public operations are serialized: the underlying
// protocol is stateful and the screen is a single shared resource, so
// interleaved captures and gestures would corrupt each other's meaning.
type Session struct {
	ID string

	mu       sync.Mutex
	cfg      *config.Config
	client   *rfb.Client
	source   *cv.Source
	matcher  *cv.Matcher
	pointer  *hid.Pointer
	keyboard *hid.Keyboard
	registry *templates.Registry
	log      *zap.Logger
	closed   bool
}

// Options tunes session construction beyond the config file.
type Options struct {
	// TemplateDir roots the template registry. Relative template paths
	// resolve against it.
	TemplateDir string
}

// New validates the configuration, connects to the endpoint and wires
// the engine together. Configuration problems surface here, before any
// input is injected.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reader, err := ocr.New(cfg.OCR)
	if err != nil {
		return nil, err
	}

	client, err := rfb.Connect(ctx, cfg.Server.Endpoint(), rfb.Options{
		ConnectTimeout: cfg.Server.ConnectTimeout,
		CallTimeout:    cfg.Server.CallTimeout,
		Shared:         true,
	})
	if err != nil {
		return nil, err
	}

	layout, err := cv.NewLayout(client.Width(), client.Height(), cfg.Displays)
	if err != nil {
		client.Close()
		return nil, err
	}
	source := cv.NewSource(client, layout)

	matcher, err := cv.NewMatcher(source, cfg.Match, reader)
	if err != nil {
		client.Close()
		return nil, err
	}

	s := &Session{
		ID:       uuid.NewString(),
		cfg:      cfg,
		client:   client,
		source:   source,
		matcher:  matcher,
		pointer:  hid.NewPointer(client, layout, matcher, cfg.Pointer),
		keyboard: hid.NewKeyboard(client, matcher, cfg.Match),
		registry: templates.NewRegistry(opts.TemplateDir),
		log:      logging.NewLogger("session"),
	}
	s.log.Info("session established",
		zap.String("id", s.ID),
		zap.String("endpoint", cfg.Server.Endpoint()),
		zap.String("desktop", client.DesktopName()),
		zap.Int("width", client.Width()),
		zap.Int("height", client.Height()))
	return s, nil
}

// Close releases held pointer buttons best-effort and tears down the
// transport. Further calls on the session fail.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.pointer.ReleaseAll(); err != nil {
		s.log.Warn("release buttons on close", zap.Error(err))
	}
	return s.client.Close()
}

func (s *Session) checkOpen() error {
	if s.closed {
		return fault.Configf("session is closed")
	}
	return nil
}

// Registry exposes the template registry for manifest loading.
func (s *Session) Registry() *templates.Registry { return s.registry }

// ResolveTemplate turns a registry name or .png path into a template.
func (s *Session) ResolveTemplate(ref string) (cv.Template, error) {
	return s.registry.Resolve(ref)
}

// Capture grabs one frame of the named display, default when empty.
func (s *Session) Capture(display string) (*cv.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.source.Grab(display)
}

// Match searches for a template until it appears or the deadline passes.
// The reference may be a registry name or a .png path; a registered
// tolerance override applies unless the caller overrides it again.
func (s *Session) Match(ref string, opts ...cv.Option) (cv.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return cv.MatchResult{}, err
	}
	tpl, resolved, err := s.resolveWithTolerance(ref, opts)
	if err != nil {
		return cv.MatchResult{}, err
	}
	return s.matcher.Match(tpl, resolved...)
}

// MatchAll requires every reference to appear on the same frame.
func (s *Session) MatchAll(refs []string, opts ...cv.Option) ([]cv.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	tpls := make([]cv.Template, len(refs))
	for i, ref := range refs {
		tpl, err := s.registry.Resolve(ref)
		if err != nil {
			return nil, fault.Configf("resolve template %q: %v", ref, err)
		}
		tpls[i] = tpl
	}
	return s.matcher.MatchAll(tpls, opts...)
}

// MatchAny returns the first reference, in caller order, to appear.
func (s *Session) MatchAny(refs []string, opts ...cv.Option) (cv.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return cv.MatchResult{}, err
	}
	tpls := make([]cv.Template, len(refs))
	for i, ref := range refs {
		tpl, err := s.registry.Resolve(ref)
		if err != nil {
			return cv.MatchResult{}, fault.Configf("resolve template %q: %v", ref, err)
		}
		tpls[i] = tpl
	}
	return s.matcher.MatchAny(tpls, opts...)
}

// MatchText searches the screen for literal or regex text.
func (s *Session) MatchText(needle string, opts ...cv.Option) ([]cv.TextMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	matches, _, err := s.matcher.MatchText(needle, opts...)
	return matches, err
}

// ReadText recognizes everything on the named display.
func (s *Session) ReadText(display string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.matcher.ReadText(display)
}

// WaitStill blocks until the named display stops changing: success once
// no pixel changed for stillDuration, fault.TimeoutError after duration.
func (s *Session) WaitStill(display string, duration, stillDuration, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return wait.Still(duration, stillDuration, interval, func() (*image.RGBA, error) {
		frame, err := s.source.Grab(display)
		if err != nil {
			return nil, err
		}
		return frame.Img, nil
	})
}

// Pointer exposes the pointer synthesizer.
func (s *Session) Pointer() *hid.Pointer { return s.pointer }

// Keyboard exposes the keyboard synthesizer.
func (s *Session) Keyboard() *hid.Keyboard { return s.keyboard }

// TypeString types text on the remote, shift handled per glyph.
func (s *Session) TypeString(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.keyboard.TypeString(text)
}

// KeysCombo presses keys in order and releases in reverse.
func (s *Session) KeysCombo(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.keyboard.KeysCombo(names...)
}

// ClickOn walks the pointer to the target and left-clicks.
func (s *Session) ClickOn(target hid.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.pointer.ClickOn(target)
}

// DragTo drags from the current position to the target.
func (s *Session) DragTo(target hid.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.pointer.DragTo(target)
}

// resolveWithTolerance resolves a reference and prepends a registered
// per-template tolerance so caller options still win.
func (s *Session) resolveWithTolerance(ref string, opts []cv.Option) (cv.Template, []cv.Option, error) {
	tpl, err := s.registry.Resolve(ref)
	if err != nil {
		return cv.Template{}, nil, fault.Configf("resolve template %q: %v", ref, err)
	}
	if def, ok := s.registry.Definition(ref); ok && def.Tolerance > 0 {
		opts = append([]cv.Option{cv.WithTolerance(def.Tolerance)}, opts...)
	}
	return tpl, opts, nil
}
