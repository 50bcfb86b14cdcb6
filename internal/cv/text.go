package cv

import (
	"errors"
	"fmt"
	"image"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/canonical/yarf/internal/fault"
	"github.com/canonical/yarf/internal/ocr"
	"github.com/canonical/yarf/internal/wait"
)

// regexPrefix marks a needle to be treated as a regular expression
// instead of a literal.
const regexPrefix = "regex:"

// TextMatch is one occurrence of the searched text on a frame.
type TextMatch struct {
	// Text is what the recognizer actually read at this position.
	Text string
	// Region is the bounding box covering the matched words.
	Region Region
	// Similarity is the literal-match ratio in percent; 100 for regex
	// matches, which are exact by definition.
	Similarity float64
}

// MatchText searches the screen for text until it appears or the deadline
// passes. A needle prefixed with "regex:" is compiled as a regular
// expression and matched against each recognized word, results in
// discovery order. Any other needle matches literally: consecutive
// recognized words are compared against the normalized needle with a
// minimum similarity ratio, results sorted best first.
//
// The frame the matches were found on is returned alongside them. On
// exhaustion the NotFoundError carries the last frame and everything that
// was read from it.
func (m *Matcher) MatchText(needle string, opts ...Option) ([]TextMatch, *Frame, error) {
	if m.reader == nil {
		return nil, nil, fault.Configf("no OCR backend configured")
	}
	o := m.resolve(opts)
	tolerance := m.cfg.TextSimilarity
	if o.tolerance != &m.cfg.Tolerance {
		tolerance = *o.tolerance
	}
	if err := validTolerance(tolerance); err != nil {
		return nil, nil, err
	}

	var re *regexp.Regexp
	if pattern, ok := strings.CutPrefix(needle, regexPrefix); ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return nil, nil, fault.Configf("invalid text pattern %q: %v", pattern, err)
		}
	}

	var (
		matches   []TextMatch
		lastFrame *Frame
		lastRead  string
		start     = time.Now()
	)
	err := wait.Until(*o.interval, *o.timeout, func() (bool, error) {
		frame, err := m.source.Grab(o.display)
		if err != nil {
			return false, err
		}
		lastFrame = frame

		if o.region != nil {
			bounds := frame.Img.Bounds()
			if err := o.region.Validate(&bounds); err != nil {
				return false, err
			}
		}
		words, err := m.reader.Words(frame.Img)
		if err != nil {
			return false, fmt.Errorf("recognize text: %w", err)
		}
		if o.region != nil {
			words = filterWords(words, o.region)
		}
		lastRead = joinWords(words)

		if re != nil {
			matches = regexMatches(re, words)
		} else {
			matches = literalMatches(needle, words, tolerance, o.limit)
		}
		return len(matches) > 0, nil
	})
	if errors.Is(err, wait.ErrExhausted) {
		nf := &fault.NotFoundError{
			Targets:     []string{needle},
			ElapsedText: fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
			ScreenText:  lastRead,
		}
		if lastFrame != nil {
			nf.LastFrame = lastFrame.Img
		}
		return nil, lastFrame, nf
	}
	if err != nil {
		return nil, nil, err
	}
	if o.limit > 0 && len(matches) > o.limit {
		matches = matches[:o.limit]
	}
	return matches, lastFrame, nil
}

// ReadText recognizes all text on the named display, default when empty.
func (m *Matcher) ReadText(display string) (string, error) {
	if m.reader == nil {
		return "", fault.Configf("no OCR backend configured")
	}
	frame, err := m.source.Grab(display)
	if err != nil {
		return "", err
	}
	text, err := m.reader.Text(frame.Img)
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}

// filterWords keeps only words whose box is centered inside the region.
func filterWords(words []ocr.Word, region *Region) []ocr.Word {
	rect := region.Rect()
	var kept []ocr.Word
	for _, w := range words {
		cx := (w.Box.Min.X + w.Box.Max.X) / 2
		cy := (w.Box.Min.Y + w.Box.Max.Y) / 2
		if image.Pt(cx, cy).In(rect) {
			kept = append(kept, w)
		}
	}
	return kept
}

func joinWords(words []ocr.Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// regexMatches returns each word matching the pattern, in the order the
// recognizer discovered them.
func regexMatches(re *regexp.Regexp, words []ocr.Word) []TextMatch {
	var out []TextMatch
	for _, w := range words {
		if re.MatchString(w.Text) {
			out = append(out, TextMatch{
				Text:       w.Text,
				Region:     regionFromRect(w.Box),
				Similarity: 100,
			})
		}
	}
	return out
}

// literalMatches slides a window of consecutive recognized words sized to
// the needle's word count and scores each against the needle, keeping
// windows at or above the minimum ratio sorted best first.
func literalMatches(needle string, words []ocr.Word, minRatio float64, limit int) []TextMatch {
	needleWords := strings.Fields(ocr.Normalize(needle))
	span := len(needleWords)
	if span == 0 || len(words) < span {
		return nil
	}
	if limit <= 0 || limit > limitFailsafe {
		limit = limitFailsafe
	}

	var out []TextMatch
	for i := 0; i+span <= len(words); i++ {
		window := words[i : i+span]
		text := joinWords(window)
		ratio := ocr.Ratio(needle, text)
		if ratio < minRatio {
			continue
		}
		box := window[0].Box
		for _, w := range window[1:] {
			box = box.Union(w.Box)
		}
		out = append(out, TextMatch{
			Text:       text,
			Region:     regionFromRect(box),
			Similarity: ratio,
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Similarity > out[b].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
