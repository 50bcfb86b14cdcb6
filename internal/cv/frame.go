package cv

import (
	"image"
	"image/draw"
	"time"

	"github.com/canonical/yarf/internal/config"
	"github.com/canonical/yarf/internal/fault"
)

// Frame is one captured still image. Frames are transient: produced fresh
// per call, consumed by the matching operation that requested them, never
// cached across calls.
type Frame struct {
	Img      *image.RGBA
	Width    int
	Height   int
	Source   string
	Captured time.Time
}

// Crop returns a copy of the frame restricted to the given region. The
// region must lie within the frame.
func (f *Frame) Crop(r Region) (*Frame, error) {
	bounds := f.Img.Bounds()
	if err := r.Validate(&bounds); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Width(), r.Height()))
	draw.Draw(img, img.Bounds(), f.Img, image.Pt(r.Left, r.Top), draw.Src)
	return &Frame{
		Img:      img,
		Width:    r.Width(),
		Height:   r.Height(),
		Source:   f.Source,
		Captured: f.Captured,
	}, nil
}

// Grabber is the transport capability the frame source needs.
type Grabber interface {
	Capture() (*image.RGBA, error)
	Width() int
	Height() int
}

// Layout maps display names onto sub-rectangles of the remote framebuffer.
// With no declared displays the whole framebuffer is the single, default
// display.
type Layout struct {
	fbWidth  int
	fbHeight int
	specs    map[string]config.DisplaySpec
	deflt    string
}

// NewLayout validates the declared displays against the framebuffer
// geometry. The first declared display becomes the default.
func NewLayout(fbWidth, fbHeight int, specs []config.DisplaySpec) (*Layout, error) {
	l := &Layout{
		fbWidth:  fbWidth,
		fbHeight: fbHeight,
		specs:    make(map[string]config.DisplaySpec, len(specs)),
	}
	fb := image.Rect(0, 0, fbWidth, fbHeight)
	for i, spec := range specs {
		rect := image.Rect(spec.OffsetX, spec.OffsetY, spec.OffsetX+spec.Width, spec.OffsetY+spec.Height)
		if !rect.In(fb) {
			return nil, fault.Configf("display %q (%v) exceeds framebuffer %dx%d", spec.Name, rect, fbWidth, fbHeight)
		}
		l.specs[spec.Name] = spec
		if i == 0 {
			l.deflt = spec.Name
		}
	}
	return l, nil
}

// Default returns the default display name; empty means the whole
// framebuffer.
func (l *Layout) Default() string { return l.deflt }

// Rect resolves a display name to its framebuffer rectangle. The empty
// name resolves to the default display. Unknown names are a configuration
// error.
func (l *Layout) Rect(name string) (image.Rectangle, error) {
	if name == "" {
		name = l.deflt
	}
	if name == "" {
		return image.Rect(0, 0, l.fbWidth, l.fbHeight), nil
	}
	spec, ok := l.specs[name]
	if !ok {
		return image.Rectangle{}, fault.Configf("unknown display %q", name)
	}
	return image.Rect(spec.OffsetX, spec.OffsetY, spec.OffsetX+spec.Width, spec.OffsetY+spec.Height), nil
}

// Size resolves a display name to its dimensions.
func (l *Layout) Size(name string) (width, height int, err error) {
	rect, err := l.Rect(name)
	if err != nil {
		return 0, 0, err
	}
	return rect.Dx(), rect.Dy(), nil
}

// Source produces Frames from a transport. Every Grab is a fresh capture;
// proportional coordinate math downstream is always relative to the actual
// frame dimensions, never a nominal reference resolution.
type Source struct {
	grabber Grabber
	layout  *Layout
}

// NewSource wires a transport to a display layout.
func NewSource(grabber Grabber, layout *Layout) *Source {
	return &Source{grabber: grabber, layout: layout}
}

// Layout exposes the display geometry.
func (s *Source) Layout() *Layout { return s.layout }

// Grab captures one frame of the named display, or of the default display
// when the name is empty.
func (s *Source) Grab(display string) (*Frame, error) {
	rect, err := s.layout.Rect(display)
	if err != nil {
		return nil, err
	}
	full, err := s.grabber.Capture()
	if err != nil {
		return nil, err
	}

	img := full
	if rect != full.Bounds() {
		cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
		draw.Draw(cropped, cropped.Bounds(), full, rect.Min, draw.Src)
		img = cropped
	}

	name := display
	if name == "" {
		name = s.layout.Default()
	}
	return &Frame{
		Img:      img,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Source:   name,
		Captured: time.Now(),
	}, nil
}
