package cv

import (
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/canonical/yarf/internal/config"
	"github.com/canonical/yarf/internal/fault"
	"github.com/canonical/yarf/internal/logging"
	"github.com/canonical/yarf/internal/ocr"
	"github.com/canonical/yarf/internal/wait"
)

// Template is an image to search for, carrying the name it was resolved
// from so failures can report what was being looked for.
type Template struct {
	Name string
	Img  *image.RGBA
}

// MatchResult is one confirmed placement of a target on a frame.
type MatchResult struct {
	// Region is the bounding box of the match in frame coordinates.
	Region Region
	// Source is the display the frame was taken from.
	Source string
	// Similarity is the match score in percent, 100 meaning exact.
	Similarity float64
}

// Matcher runs bounded template and text searches over fresh frames.
// Every attempt captures anew; a result always describes the current
// screen, not a stale one.
type Matcher struct {
	source *Source
	cfg    config.MatchConfig
	reader ocr.Reader
	scan   scanner
	log    *zap.Logger
}

// NewMatcher validates the configured method up front and binds the frame
// source and OCR reader.
func NewMatcher(source *Source, cfg config.MatchConfig, reader ocr.Reader) (*Matcher, error) {
	scan, err := newScanner(cfg.Method)
	if err != nil {
		return nil, err
	}
	return &Matcher{
		source: source,
		cfg:    cfg,
		reader: reader,
		scan:   scan,
		log:    logging.NewLogger("matcher"),
	}, nil
}

func (m *Matcher) resolve(opts []Option) matchOptions {
	o := matchOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tolerance == nil {
		o.tolerance = &m.cfg.Tolerance
	}
	if o.timeout == nil {
		o.timeout = &m.cfg.Timeout
	}
	if o.interval == nil {
		o.interval = &m.cfg.Interval
	}
	return o
}

func validTolerance(t float64) error {
	if t < 0 || t > 100 {
		return fault.Configf("tolerance %v outside 0..100", t)
	}
	return nil
}

// searchRect resolves the option region against a frame, validating it on
// the way.
func searchRect(frame *Frame, region *Region) (image.Rectangle, error) {
	bounds := frame.Img.Bounds()
	if region == nil {
		return bounds, nil
	}
	if err := region.Validate(&bounds); err != nil {
		return image.Rectangle{}, err
	}
	return region.Rect(), nil
}

// Match searches for the template until it appears or the deadline
// passes. The best-scoring placement wins; equal scores keep the first in
// raster order. Exhaustion yields a fault.NotFoundError carrying the last
// frame searched.
func (m *Matcher) Match(tpl Template, opts ...Option) (MatchResult, error) {
	o := m.resolve(opts)
	if err := validTolerance(*o.tolerance); err != nil {
		return MatchResult{}, err
	}
	minScore := *o.tolerance / 100

	var (
		result    MatchResult
		lastFrame *Frame
		start     = time.Now()
	)
	err := wait.Until(*o.interval, *o.timeout, func() (bool, error) {
		frame, err := m.source.Grab(o.display)
		if err != nil {
			return false, err
		}
		lastFrame = frame
		search, err := searchRect(frame, o.region)
		if err != nil {
			return false, err
		}
		best, ok := findBest(frame.Img, tpl.Img, search, m.scan)
		if !ok {
			return false, fault.Configf("template %q (%dx%d) larger than search area %v",
				tpl.Name, tpl.Img.Bounds().Dx(), tpl.Img.Bounds().Dy(), search)
		}
		if best.score < minScore {
			return false, nil
		}
		result = MatchResult{
			Region:     regionFromRect(best.rect),
			Source:     frame.Source,
			Similarity: best.score * 100,
		}
		return true, nil
	})
	if errors.Is(err, wait.ErrExhausted) {
		return MatchResult{}, m.notFound([]string{tpl.Name}, start, lastFrame)
	}
	if err != nil {
		return MatchResult{}, err
	}
	m.log.Debug("template matched",
		zap.String("template", tpl.Name),
		zap.Float64("similarity", result.Similarity),
		zap.String("region", result.Region.String()))
	return result, nil
}

// MatchAll requires every template to appear on the same frame. On
// success results come back in caller order. On exhaustion the error
// names the templates that never matched on any attempt, or failing that
// the ones missing from the final frame; no partial results are returned.
func (m *Matcher) MatchAll(tpls []Template, opts ...Option) ([]MatchResult, error) {
	if len(tpls) == 0 {
		return nil, fault.Configf("no templates given")
	}
	o := m.resolve(opts)
	if err := validTolerance(*o.tolerance); err != nil {
		return nil, err
	}
	minScore := *o.tolerance / 100

	var (
		results    []MatchResult
		lastFrame  *Frame
		everHit    = make([]bool, len(tpls))
		lastMissed []string
		start      = time.Now()
	)
	err := wait.Until(*o.interval, *o.timeout, func() (bool, error) {
		frame, err := m.source.Grab(o.display)
		if err != nil {
			return false, err
		}
		lastFrame = frame
		search, err := searchRect(frame, o.region)
		if err != nil {
			return false, err
		}

		attempt := make([]MatchResult, len(tpls))
		lastMissed = lastMissed[:0]
		for i, tpl := range tpls {
			best, ok := findBest(frame.Img, tpl.Img, search, m.scan)
			if !ok {
				return false, fault.Configf("template %q (%dx%d) larger than search area %v",
					tpl.Name, tpl.Img.Bounds().Dx(), tpl.Img.Bounds().Dy(), search)
			}
			if best.score < minScore {
				lastMissed = append(lastMissed, tpl.Name)
				continue
			}
			everHit[i] = true
			attempt[i] = MatchResult{
				Region:     regionFromRect(best.rect),
				Source:     frame.Source,
				Similarity: best.score * 100,
			}
		}
		if len(lastMissed) > 0 {
			return false, nil
		}
		results = attempt
		return true, nil
	})
	if errors.Is(err, wait.ErrExhausted) {
		targets := lastMissed
		for i, hit := range everHit {
			if !hit {
				// The first template that never matched is the headline.
				targets = []string{tpls[i].Name}
				break
			}
		}
		return nil, m.notFound(targets, start, lastFrame)
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// MatchAny returns the first template, in caller order, to appear on a
// frame.
func (m *Matcher) MatchAny(tpls []Template, opts ...Option) (MatchResult, error) {
	if len(tpls) == 0 {
		return MatchResult{}, fault.Configf("no templates given")
	}
	o := m.resolve(opts)
	if err := validTolerance(*o.tolerance); err != nil {
		return MatchResult{}, err
	}
	minScore := *o.tolerance / 100

	var (
		result    MatchResult
		lastFrame *Frame
		start     = time.Now()
	)
	err := wait.Until(*o.interval, *o.timeout, func() (bool, error) {
		frame, err := m.source.Grab(o.display)
		if err != nil {
			return false, err
		}
		lastFrame = frame
		search, err := searchRect(frame, o.region)
		if err != nil {
			return false, err
		}
		for _, tpl := range tpls {
			best, ok := findBest(frame.Img, tpl.Img, search, m.scan)
			if !ok {
				return false, fault.Configf("template %q (%dx%d) larger than search area %v",
					tpl.Name, tpl.Img.Bounds().Dx(), tpl.Img.Bounds().Dy(), search)
			}
			if best.score >= minScore {
				result = MatchResult{
					Region:     regionFromRect(best.rect),
					Source:     frame.Source,
					Similarity: best.score * 100,
				}
				return true, nil
			}
		}
		return false, nil
	})
	if errors.Is(err, wait.ErrExhausted) {
		names := make([]string, len(tpls))
		for i, tpl := range tpls {
			names[i] = tpl.Name
		}
		return MatchResult{}, m.notFound(names, start, lastFrame)
	}
	if err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

// Occurrences finds every placement of the template on one frame, in
// raster order, retrying until at least one appears. The result count is
// capped by WithLimit and by an internal failsafe.
func (m *Matcher) Occurrences(tpl Template, opts ...Option) ([]MatchResult, error) {
	o := m.resolve(opts)
	if err := validTolerance(*o.tolerance); err != nil {
		return nil, err
	}
	minScore := *o.tolerance / 100

	var (
		results   []MatchResult
		lastFrame *Frame
		start     = time.Now()
	)
	err := wait.Until(*o.interval, *o.timeout, func() (bool, error) {
		frame, err := m.source.Grab(o.display)
		if err != nil {
			return false, err
		}
		lastFrame = frame
		search, err := searchRect(frame, o.region)
		if err != nil {
			return false, err
		}
		hits := findAll(frame.Img, tpl.Img, search, m.scan, minScore, o.limit)
		if len(hits) == 0 {
			return false, nil
		}
		results = results[:0]
		for _, hit := range hits {
			results = append(results, MatchResult{
				Region:     regionFromRect(hit.rect),
				Source:     frame.Source,
				Similarity: hit.score * 100,
			})
		}
		return true, nil
	})
	if errors.Is(err, wait.ErrExhausted) {
		return nil, m.notFound([]string{tpl.Name}, start, lastFrame)
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (m *Matcher) notFound(targets []string, start time.Time, lastFrame *Frame) error {
	nf := &fault.NotFoundError{
		Targets:     targets,
		ElapsedText: fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
	}
	if lastFrame != nil {
		nf.LastFrame = lastFrame.Img
	}
	m.log.Warn("search exhausted", zap.Strings("targets", targets))
	return nf
}
