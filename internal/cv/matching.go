package cv

import (
	"image"
	"math"

	"github.com/canonical/yarf/internal/config"
	"github.com/canonical/yarf/internal/fault"
)

// limitFailsafe caps FindAll results so a degenerate template (e.g. a
// solid rectangle) cannot produce an unbounded match list.
const limitFailsafe = 256

// scanner computes a similarity score in [0,1] for the template placed at
// (x, y) in the haystack.
type scanner func(haystack, needle *image.RGBA, x, y int) float64

func newScanner(method string) (scanner, error) {
	switch method {
	case config.MethodSAD:
		return matchSAD, nil
	case config.MethodSSD:
		return matchSSD, nil
	case config.MethodNCC:
		return matchNCC, nil
	default:
		return nil, fault.Configf("unknown match method %q", method)
	}
}

// candidate is one placement of the template inside a frame.
type candidate struct {
	rect  image.Rectangle
	score float64 // 0..1
}

// findBest scans the search rectangle for the best-scoring placement of
// the needle. Ties break by raster scan order of the top-left corner: the
// scan runs top-to-bottom then left-to-right and only a strictly better
// score displaces the current best.
func findBest(haystack, needle *image.RGBA, search image.Rectangle, scan scanner) (candidate, bool) {
	nw := needle.Bounds().Dx()
	nh := needle.Bounds().Dy()

	search = search.Intersect(haystack.Bounds())
	maxX := search.Max.X - nw
	maxY := search.Max.Y - nh
	if search.Empty() || maxX < search.Min.X || maxY < search.Min.Y {
		return candidate{}, false
	}

	best := candidate{score: -1}
	for y := search.Min.Y; y <= maxY; y++ {
		for x := search.Min.X; x <= maxX; x++ {
			score := scan(haystack, needle, x, y)
			if score > best.score {
				best = candidate{rect: image.Rect(x, y, x+nw, y+nh), score: score}
			}
		}
	}
	return best, true
}

// findAll returns every placement scoring at least minScore, in raster
// order, capped at limit (or limitFailsafe when limit <= 0).
func findAll(haystack, needle *image.RGBA, search image.Rectangle, scan scanner, minScore float64, limit int) []candidate {
	nw := needle.Bounds().Dx()
	nh := needle.Bounds().Dy()

	search = search.Intersect(haystack.Bounds())
	maxX := search.Max.X - nw
	maxY := search.Max.Y - nh
	if search.Empty() || maxX < search.Min.X || maxY < search.Min.Y {
		return nil
	}
	if limit <= 0 || limit > limitFailsafe {
		limit = limitFailsafe
	}

	var out []candidate
	for y := search.Min.Y; y <= maxY; y++ {
		for x := search.Min.X; x <= maxX; x++ {
			score := scan(haystack, needle, x, y)
			if score >= minScore {
				out = append(out, candidate{rect: image.Rect(x, y, x+nw, y+nh), score: score})
				if len(out) >= limit {
					return out
				}
			}
		}
	}
	return out
}

// matchSAD scores by sum of absolute differences. Fastest, least exact.
func matchSAD(haystack, needle *image.RGBA, x, y int) float64 {
	nb := needle.Bounds()
	width, height := nb.Dx(), nb.Dy()

	var sad uint64
	for ny := 0; ny < height; ny++ {
		hIdx := haystack.PixOffset(x, y+ny)
		nIdx := needle.PixOffset(nb.Min.X, nb.Min.Y+ny)
		for nx := 0; nx < width; nx++ {
			sad += uint64(absInt(int(haystack.Pix[hIdx]) - int(needle.Pix[nIdx])))
			sad += uint64(absInt(int(haystack.Pix[hIdx+1]) - int(needle.Pix[nIdx+1])))
			sad += uint64(absInt(int(haystack.Pix[hIdx+2]) - int(needle.Pix[nIdx+2])))
			hIdx += 4
			nIdx += 4
		}
	}

	maxSAD := float64(width * height * 3 * 255)
	return 1.0 - float64(sad)/maxSAD
}

// matchSSD scores by sum of squared differences. The default: a quadratic
// penalty suppresses near-misses without NCC's cost.
func matchSSD(haystack, needle *image.RGBA, x, y int) float64 {
	nb := needle.Bounds()
	width, height := nb.Dx(), nb.Dy()

	var ssd uint64
	for ny := 0; ny < height; ny++ {
		hIdx := haystack.PixOffset(x, y+ny)
		nIdx := needle.PixOffset(nb.Min.X, nb.Min.Y+ny)
		for nx := 0; nx < width; nx++ {
			dr := int(haystack.Pix[hIdx]) - int(needle.Pix[nIdx])
			dg := int(haystack.Pix[hIdx+1]) - int(needle.Pix[nIdx+1])
			db := int(haystack.Pix[hIdx+2]) - int(needle.Pix[nIdx+2])
			ssd += uint64(dr*dr + dg*dg + db*db)
			hIdx += 4
			nIdx += 4
		}
	}

	maxSSD := float64(width * height * 3 * 255 * 255)
	return 1.0 - float64(ssd)/maxSSD
}

// matchNCC scores by normalized cross-correlation. Robust to uniform
// brightness shifts, slowest of the three.
func matchNCC(haystack, needle *image.RGBA, x, y int) float64 {
	nb := needle.Bounds()
	width, height := nb.Dx(), nb.Dy()
	pixelCount := float64(width * height * 3)

	var sumH, sumN, sumHN, sumHH, sumNN float64
	for ny := 0; ny < height; ny++ {
		hIdx := haystack.PixOffset(x, y+ny)
		nIdx := needle.PixOffset(nb.Min.X, nb.Min.Y+ny)
		for nx := 0; nx < width; nx++ {
			for c := 0; c < 3; c++ {
				h := float64(haystack.Pix[hIdx+c])
				n := float64(needle.Pix[nIdx+c])
				sumH += h
				sumN += n
				sumHN += h * n
				sumHH += h * h
				sumNN += n * n
			}
			hIdx += 4
			nIdx += 4
		}
	}

	numerator := sumHN - sumH*sumN/pixelCount
	denomH := math.Sqrt(sumHH - sumH*sumH/pixelCount)
	denomN := math.Sqrt(sumNN - sumN*sumN/pixelCount)
	if denomH == 0 || denomN == 0 {
		// Flat patches have no variance to correlate; compare directly.
		if sumH == sumN {
			return 1
		}
		return 0
	}
	return (numerator/(denomH*denomN) + 1.0) / 2.0
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
