// Package ocr provides text recognition over captured frames.
//
// Two backends exist: "gosseract" binds libtesseract through cgo and
// "tesseract" shells out to the tesseract binary and parses its TSV
// output. Both speak the same Reader interface so the rest of the engine
// does not care which one is configured.
package ocr

import (
	"image"
	"strings"
	"unicode"

	xdraw "golang.org/x/image/draw"

	"github.com/canonical/yarf/internal/config"
	"github.com/canonical/yarf/internal/fault"
)

// Word is one recognized token with its bounding box in source image
// coordinates and the engine's confidence in percent.
type Word struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// Reader recognizes text in images.
type Reader interface {
	// Words returns every recognized word with position and confidence.
	Words(img image.Image) ([]Word, error)
	// Text returns the full recognized text with line structure preserved.
	Text(img image.Image) (string, error)
}

// New constructs the configured backend. The backend set is closed; an
// unknown name fails here, before any recognition is attempted.
func New(cfg config.OCRConfig) (Reader, error) {
	switch cfg.Backend {
	case config.OCRGosseract:
		return newGosseractReader(), nil
	case config.OCRTesseractCLI:
		return newTesseractReader(cfg.TesseractPath), nil
	default:
		return nil, fault.Configf("unknown OCR backend %q", cfg.Backend)
	}
}

// minOCRSide is the smallest edge tesseract handles reliably. Smaller
// inputs are upscaled before recognition and their word boxes mapped back.
const minOCRSide = 300

// prepare upscales small images for recognition. It returns the image to
// recognize and the scale factor that was applied, 1 when untouched.
func prepare(img image.Image) (image.Image, int) {
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	if side == 0 || side >= minOCRSide {
		return img, 1
	}
	scale := (minOCRSide + side - 1) / side
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, scale
}

// unscale maps a bounding box from the upscaled image back to source
// coordinates.
func unscale(box image.Rectangle, scale int) image.Rectangle {
	if scale <= 1 {
		return box
	}
	return image.Rect(box.Min.X/scale, box.Min.Y/scale, box.Max.X/scale, box.Max.Y/scale)
}

// Normalize folds case and collapses runs of whitespace so recognized and
// expected text compare on content rather than layout.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Ratio scores the similarity of two strings in percent, 100 meaning
// equal. It is an edit-distance ratio over the normalized forms.
func Ratio(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == b {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	dist := levenshtein([]rune(a), []rune(b))
	longer := la
	if lb > longer {
		longer = lb
	}
	return 100 * (1 - float64(dist)/float64(longer))
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// cleanWord trims the stray punctuation tesseract attaches to word
// boundaries.
func cleanWord(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
