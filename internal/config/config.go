// Package config holds the engine's explicit configuration. Defaults are
// plain values on a struct that is passed through constructors; there is no
// mutable global state, so several engine instances can coexist in one
// process.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/canonical/yarf/internal/fault"
)

// Matching method names accepted by Match.Method.
const (
	MethodSSD = "ssd"
	MethodSAD = "sad"
	MethodNCC = "ncc"
)

// OCR backend names accepted by OCR.Backend.
const (
	OCRGosseract    = "gosseract"
	OCRTesseractCLI = "tesseract"
)

// ServerConfig locates the remote display endpoint.
type ServerConfig struct {
	Host string
	// Display is the VNC display number; the port is 5900+Display unless
	// Port is set explicitly.
	Display int
	Port    int
	// ConnectTimeout bounds the initial handshake.
	ConnectTimeout time.Duration
	// CallTimeout bounds each capture or injection round trip.
	CallTimeout time.Duration
}

// Endpoint returns the host:port connection string.
func (s ServerConfig) Endpoint() string {
	port := s.Port
	if port == 0 {
		port = 5900 + s.Display
	}
	return fmt.Sprintf("%s:%d", s.Host, port)
}

// MatchConfig carries matching defaults, overridable per call.
type MatchConfig struct {
	// Tolerance is a percentage, 100 meaning exact.
	Tolerance float64
	// Method is one of ssd, sad, ncc.
	Method string
	// Timeout and Interval drive the retry loop.
	Timeout  time.Duration
	Interval time.Duration
	// TextSimilarity is the minimum ratio for literal text matches,
	// percentage like Tolerance.
	TextSimilarity float64
}

// OCRConfig selects the text recognition backend.
type OCRConfig struct {
	Backend string
	// TesseractPath overrides the binary location for the CLI backend.
	TesseractPath string
}

// PointerConfig carries pointer-walk defaults.
type PointerConfig struct {
	WalkSteps    int
	WalkInterval time.Duration
}

// DisplaySpec names a sub-rectangle of the remote framebuffer. A session
// with no declared displays exposes the whole framebuffer as the default
// display.
type DisplaySpec struct {
	Name    string
	Width   int
	Height  int
	OffsetX int
	OffsetY int
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Level string
	File  string
}

// Config is the root configuration for one engine session.
type Config struct {
	Server   ServerConfig
	Match    MatchConfig
	OCR      OCRConfig
	Pointer  PointerConfig
	Displays []DisplaySpec
	Logging  LoggingConfig
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "localhost",
			Display:        0,
			ConnectTimeout: 10 * time.Second,
			CallTimeout:    10 * time.Second,
		},
		Match: MatchConfig{
			Tolerance:      80,
			Method:         MethodSSD,
			Timeout:        10 * time.Second,
			Interval:       500 * time.Millisecond,
			TextSimilarity: 80,
		},
		OCR: OCRConfig{
			Backend: OCRTesseractCLI,
		},
		Pointer: PointerConfig{
			WalkSteps:    20,
			WalkInterval: 10 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate checks the closed-set selections up front so that bad settings
// fail at construction, not at first use.
func (c *Config) Validate() error {
	switch c.Match.Method {
	case MethodSSD, MethodSAD, MethodNCC:
	default:
		return fault.Configf("unknown match method %q", c.Match.Method)
	}
	switch c.OCR.Backend {
	case OCRGosseract, OCRTesseractCLI:
	default:
		return fault.Configf("unknown OCR backend %q", c.OCR.Backend)
	}
	if c.Match.Tolerance < 0 || c.Match.Tolerance > 100 {
		return fault.Configf("tolerance %v outside 0..100", c.Match.Tolerance)
	}
	seen := make(map[string]bool, len(c.Displays))
	for _, d := range c.Displays {
		if d.Name == "" || d.Width <= 0 || d.Height <= 0 {
			return fault.Configf("invalid display spec %+v", d)
		}
		if seen[d.Name] {
			return fault.Configf("duplicate display %q", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// displayRe matches one display declaration: name:WxH or name:WxH+X+Y.
var displayRe = regexp.MustCompile(`^(?:(?P<id>[\w-]+):)?(?P<w>\d+)x(?P<h>\d+)(?:\+(?P<x>\d+)\+(?P<y>\d+))?$`)

// ParseDisplaySpec parses a single display declaration of the form
// "name:WxH" or "name:WxH+X+Y".
func ParseDisplaySpec(s string) (DisplaySpec, error) {
	m := displayRe.FindStringSubmatch(s)
	if m == nil {
		return DisplaySpec{}, fault.Configf("invalid display spec %q", s)
	}
	get := func(name string) string { return m[displayRe.SubexpIndex(name)] }
	spec := DisplaySpec{Name: get("id")}
	spec.Width, _ = strconv.Atoi(get("w"))
	spec.Height, _ = strconv.Atoi(get("h"))
	if get("x") != "" {
		spec.OffsetX, _ = strconv.Atoi(get("x"))
		spec.OffsetY, _ = strconv.Atoi(get("y"))
	}
	return spec, nil
}
