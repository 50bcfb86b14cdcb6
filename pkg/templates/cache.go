package templates

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"sync"
)

// CacheStats tracks image cache effectiveness.
type CacheStats struct {
	Hits   int64
	Misses int64
	Loads  int64
}

// imageCache keeps decoded template images keyed by absolute path.
// Templates are small and reused across many match calls, so decoded
// pixels are kept until Unload.
type imageCache struct {
	mu     sync.Mutex
	images map[string]*image.RGBA
	st     CacheStats
}

func newImageCache() *imageCache {
	return &imageCache{images: make(map[string]*image.RGBA)}
}

func (c *imageCache) get(path string) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if img, ok := c.images[path]; ok {
		c.st.Hits++
		return img, nil
	}
	c.st.Misses++

	img, err := loadPNG(path)
	if err != nil {
		return nil, err
	}
	c.st.Loads++
	c.images[path] = img
	return img, nil
}

func (c *imageCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images = make(map[string]*image.RGBA)
}

func (c *imageCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

func loadPNG(path string) (*image.RGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open template image: %w", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode template image %s: %w", path, err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}
