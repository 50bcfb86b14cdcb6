package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// tesseractReader shells out to the tesseract binary and parses its TSV
// output. It avoids the cgo build dependency of the gosseract backend at
// the cost of one process spawn per recognition.
type tesseractReader struct {
	binary string
}

func newTesseractReader(path string) *tesseractReader {
	if path == "" {
		path = "tesseract"
	}
	return &tesseractReader{binary: path}
}

func (r *tesseractReader) Words(img image.Image) ([]Word, error) {
	prepped, scale := prepare(img)
	out, err := r.run(prepped, "tsv")
	if err != nil {
		return nil, err
	}
	return parseTSV(out, scale)
}

func (r *tesseractReader) Text(img image.Image) (string, error) {
	prepped, _ := prepare(img)
	out, err := r.run(prepped, "txt")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (r *tesseractReader) run(img image.Image, format string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "ocr-*.png")
	if err != nil {
		return nil, fmt.Errorf("ocr temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("encode frame for OCR: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write OCR input: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close OCR input: %w", err)
	}

	cmd := exec.Command(r.binary, tmp.Name(), "stdout", format)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(r.binary), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// TSV columns emitted by tesseract: level page block par line word left
// top width height conf text. Word rows are level 5.
const (
	tsvLevel  = 0
	tsvLeft   = 6
	tsvTop    = 7
	tsvWidth  = 8
	tsvHeight = 9
	tsvConf   = 10
	tsvText   = 11
)

func parseTSV(out []byte, scale int) ([]Word, error) {
	lines := strings.Split(string(out), "\n")
	var words []Word
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			// Header row or trailing blank.
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) <= tsvText {
			continue
		}
		if cols[tsvLevel] != "5" {
			continue
		}
		text := cleanWord(cols[tsvText])
		if text == "" {
			continue
		}
		left, err1 := strconv.Atoi(cols[tsvLeft])
		top, err2 := strconv.Atoi(cols[tsvTop])
		width, err3 := strconv.Atoi(cols[tsvWidth])
		height, err4 := strconv.Atoi(cols[tsvHeight])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, fmt.Errorf("malformed tesseract TSV row %d: %q", i, line)
		}
		conf, _ := strconv.ParseFloat(cols[tsvConf], 64)
		words = append(words, Word{
			Text:       text,
			Box:        unscale(image.Rect(left, top, left+width, top+height), scale),
			Confidence: conf,
		})
	}
	return words, nil
}
