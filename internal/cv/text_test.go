package cv

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/yarf/internal/fault"
	"github.com/canonical/yarf/internal/ocr"
)

// fakeReader returns a fixed word list regardless of input.
type fakeReader struct {
	words []ocr.Word
}

func (r *fakeReader) Words(img image.Image) ([]ocr.Word, error) { return r.words, nil }

func (r *fakeReader) Text(img image.Image) (string, error) {
	return joinWords(r.words), nil
}

func word(text string, x, y int) ocr.Word {
	return ocr.Word{Text: text, Box: image.Rect(x, y, x+20, y+10), Confidence: 90}
}

func newTextMatcher(t *testing.T, words ...ocr.Word) *Matcher {
	t.Helper()
	grabber := &scriptGrabber{frames: []*image.RGBA{canvas(200, 100, white)}}
	layout, err := NewLayout(200, 100, nil)
	require.NoError(t, err)
	m, err := NewMatcher(NewSource(grabber, layout), testMatchConfig(), &fakeReader{words: words})
	require.NoError(t, err)
	return m
}

func TestMatchTextLiteral(t *testing.T) {
	m := newTextMatcher(t, word("Open", 10, 10), word("Settings", 40, 10), word("Close", 10, 40))

	matches, frame, err := m.MatchText("settings")
	require.NoError(t, err)
	require.NotNil(t, frame)
	require.Len(t, matches, 1)
	assert.Equal(t, "Settings", matches[0].Text)
	assert.Equal(t, Region{Left: 40, Top: 10, Right: 60, Bottom: 20}, matches[0].Region)
	assert.InDelta(t, 100, matches[0].Similarity, 0.1)
}

func TestMatchTextLiteralMultiWord(t *testing.T) {
	m := newTextMatcher(t, word("Save", 10, 10), word("and", 35, 10), word("Quit", 60, 10))

	matches, _, err := m.MatchText("save and quit")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	// The region spans every word of the phrase.
	assert.Equal(t, Region{Left: 10, Top: 10, Right: 80, Bottom: 20}, matches[0].Region)
}

func TestMatchTextLiteralFuzzy(t *testing.T) {
	// OCR often misreads a glyph or two; the ratio threshold should still
	// accept a close reading.
	m := newTextMatcher(t, word("Settlngs", 40, 10))

	matches, _, err := m.MatchText("Settings")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Less(t, matches[0].Similarity, 100.0)
	assert.GreaterOrEqual(t, matches[0].Similarity, 80.0)
}

func TestMatchTextRegexDiscoveryOrder(t *testing.T) {
	m := newTextMatcher(t, word("item12", 10, 10), word("other", 50, 10), word("item7", 10, 40))

	matches, _, err := m.MatchText(`regex:item\d+`)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "item12", matches[0].Text)
	assert.Equal(t, "item7", matches[1].Text)
}

func TestMatchTextInvalidRegex(t *testing.T) {
	m := newTextMatcher(t)
	_, _, err := m.MatchText("regex:[unclosed")
	var cfg *fault.ConfigurationError
	require.ErrorAs(t, err, &cfg)
}

func TestMatchTextNotFoundCarriesScreenText(t *testing.T) {
	m := newTextMatcher(t, word("Welcome", 10, 10), word("Home", 60, 10))

	_, _, err := m.MatchText("Logout", WithTimeout(50*time.Millisecond))
	var nf *fault.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"Logout"}, nf.Targets)
	assert.Equal(t, "Welcome Home", nf.ScreenText)
	assert.NotNil(t, nf.LastFrame)
}

func TestMatchTextRegionFilter(t *testing.T) {
	m := newTextMatcher(t, word("inside", 10, 10), word("inside", 150, 80))

	matches, _, err := m.MatchText("inside", WithRegion(NewRegion(0, 0, 100, 50)))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, Region{Left: 10, Top: 10, Right: 30, Bottom: 20}, matches[0].Region)
}

func TestReadText(t *testing.T) {
	m := newTextMatcher(t, word("hello", 0, 0), word("world", 30, 0))
	text, err := m.ReadText("")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}
