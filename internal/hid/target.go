package hid

import (
	"math"

	"github.com/canonical/yarf/internal/cv"
	"github.com/canonical/yarf/internal/fault"
)

// Target is where a pointer gesture should land: a fixed point, a
// proportional point, or the center of whatever a template or text search
// finds. Locator targets run their search when the gesture executes.
type Target struct {
	kind     targetKind
	display  string
	x, y     int
	fx, fy   float64
	template cv.Template
	text     string
	opts     []cv.Option
}

type targetKind int

const (
	targetPoint targetKind = iota
	targetRatio
	targetTemplate
	targetText
)

// At targets an absolute point on the default display.
func At(x, y int) Target {
	return Target{kind: targetPoint, x: x, y: y}
}

// AtRatio targets a proportional point on the default display.
func AtRatio(fx, fy float64) Target {
	return Target{kind: targetRatio, fx: fx, fy: fy}
}

// OnTemplate targets the center of a template match.
func OnTemplate(tpl cv.Template, opts ...cv.Option) Target {
	return Target{kind: targetTemplate, template: tpl, opts: opts}
}

// OnText targets the center of the best text match.
func OnText(text string, opts ...cv.Option) Target {
	return Target{kind: targetText, text: text, opts: opts}
}

// OnDisplay retargets a point or ratio target at a named display.
func (t Target) OnDisplay(name string) Target {
	t.display = name
	return t
}

// resolve produces display-local coordinates and the display they belong
// to.
func (t Target) resolve(p *Pointer) (display string, x, y int, err error) {
	switch t.kind {
	case targetPoint:
		return t.display, t.x, t.y, nil
	case targetRatio:
		w, h, err := p.layout.Size(t.display)
		if err != nil {
			return "", 0, 0, err
		}
		return t.display, int(math.Round(t.fx * float64(w))), int(math.Round(t.fy * float64(h))), nil
	case targetTemplate:
		if p.matcher == nil {
			return "", 0, 0, fault.Configf("no matcher available for template target")
		}
		result, err := p.matcher.Match(t.template, t.opts...)
		if err != nil {
			return "", 0, 0, err
		}
		cx, cy := result.Region.Center()
		return result.Source, cx, cy, nil
	case targetText:
		if p.matcher == nil {
			return "", 0, 0, fault.Configf("no matcher available for text target")
		}
		matches, frame, err := p.matcher.MatchText(t.text, t.opts...)
		if err != nil {
			return "", 0, 0, err
		}
		cx, cy := matches[0].Region.Center()
		return frame.Source, cx, cy, nil
	default:
		return "", 0, 0, fault.Configf("unknown target kind %d", t.kind)
	}
}
