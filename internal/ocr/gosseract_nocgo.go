//go:build !cgo

package ocr

import (
	"image"

	"github.com/canonical/yarf/internal/fault"
)

// gosseractReader is the cgo-less stand-in for the libtesseract binding.
// Construction still succeeds so backend selection behaves the same; the
// unavailability surfaces on first use.
type gosseractReader struct{}

func newGosseractReader() *gosseractReader { return &gosseractReader{} }

func (r *gosseractReader) Words(img image.Image) ([]Word, error) {
	return nil, fault.Configf("gosseract OCR backend requires a cgo-enabled build")
}

func (r *gosseractReader) Text(img image.Image) (string, error) {
	return "", fault.Configf("gosseract OCR backend requires a cgo-enabled build")
}
