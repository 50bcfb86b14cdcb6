//go:build cgo

package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
)

// gosseractReader recognizes text through the libtesseract cgo bindings.
// Each call uses a fresh client; the binding's client is not safe for
// concurrent reuse and recognition is not on a hot path.
type gosseractReader struct{}

func newGosseractReader() *gosseractReader { return &gosseractReader{} }

func (r *gosseractReader) Words(img image.Image) ([]Word, error) {
	prepped, scale := prepare(img)
	client := gosseract.NewClient()
	defer client.Close()

	if err := setImage(client, prepped); err != nil {
		return nil, err
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("gosseract bounding boxes: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		text := cleanWord(b.Word)
		if text == "" {
			continue
		}
		words = append(words, Word{
			Text:       text,
			Box:        unscale(b.Box, scale),
			Confidence: b.Confidence,
		})
	}
	return words, nil
}

func (r *gosseractReader) Text(img image.Image) (string, error) {
	prepped, _ := prepare(img)
	client := gosseract.NewClient()
	defer client.Close()

	if err := setImage(client, prepped); err != nil {
		return "", err
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("gosseract text: %w", err)
	}
	return text, nil
}

func setImage(client *gosseract.Client, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode frame for OCR: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return fmt.Errorf("gosseract set image: %w", err)
	}
	return nil
}
