// Package fault defines the error taxonomy shared by the engine.
//
// Four kinds cover every failure a public operation can surface:
//
//   - ConfigurationError: invalid arguments, rejected synchronously and
//     never retried.
//   - NotFoundError: a match search exhausted its timeout. Expected and
//     recoverable; callers use it to assert absence.
//   - TimeoutError: the screen never went still within the allowed window.
//     Distinct from NotFoundError because it concerns temporal stability,
//     not existence.
//   - TransportError: the session channel failed. Fatal to the session.
package fault

import (
	"fmt"
	"image"
	"strings"
)

// ConfigurationError reports invalid arguments or settings: an unknown
// display, an unmapped character, a bad OCR backend name, a malformed
// region.
type ConfigurationError struct {
	Msg   string
	Cause error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Msg, e.Cause)
	}
	return "configuration: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// Configf builds a ConfigurationError from a format string.
func Configf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a bounded search never satisfied its match
// predicate. It keeps the searched identifiers and the last frame seen so
// the caller can log what the screen actually showed.
type NotFoundError struct {
	// Targets are the template paths, registry names or text needles that
	// were searched for. For MatchAll this is narrowed to the targets that
	// never matched.
	Targets []string

	// Elapsed is the total wall-clock time spent searching.
	ElapsedText string

	// LastFrame is the final frame searched, nil if no capture succeeded.
	LastFrame *image.RGBA

	// ScreenText is OCR output of the last frame for text searches, empty
	// otherwise.
	ScreenText string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("no match for %s after %s", strings.Join(e.Targets, ", "), e.ElapsedText)
	if e.ScreenText != "" {
		msg += "; text on screen was: " + e.ScreenText
	}
	return msg
}

// TimeoutError reports that the stillness detector ran out of time before
// the screen settled.
type TimeoutError struct {
	Op      string
	Elapsed string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Elapsed)
}

// TransportError reports a failed session channel. The session is invalid
// afterwards; the caller must reconnect.
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }
