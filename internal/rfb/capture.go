package rfb

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"time"
)

// Capture requests one full (non-incremental) framebuffer update and
// returns the assembled frame. The call blocks until the update is fully
// received or the call timeout elapses.
func (c *Client) Capture() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUsable("capture"); err != nil {
		return nil, err
	}
	_ = c.conn.SetDeadline(time.Now().Add(c.callTimeout))
	defer c.conn.SetDeadline(time.Time{})

	// FramebufferUpdateRequest for the whole screen.
	req := make([]byte, 10)
	req[0] = msgFramebufferUpdateRequest
	req[1] = 0 // non-incremental: always a fresh full frame
	binary.BigEndian.PutUint16(req[6:], uint16(c.width))
	binary.BigEndian.PutUint16(req[8:], uint16(c.height))
	if _, err := c.conn.Write(req); err != nil {
		return nil, c.fail("capture request", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	for {
		msgType, err := c.br.ReadByte()
		if err != nil {
			return nil, c.fail("capture read", err)
		}
		switch msgType {
		case msgFramebufferUpdate:
			if err := c.readUpdate(img); err != nil {
				return nil, c.fail("framebuffer update", err)
			}
			return img, nil
		case msgSetColourMapEntries:
			if err := c.skipColourMap(); err != nil {
				return nil, c.fail("colour map", err)
			}
		case msgBell:
			// One byte message, nothing more to read.
		case msgServerCutText:
			if err := c.skipCutText(); err != nil {
				return nil, c.fail("cut text", err)
			}
		default:
			return nil, c.fail("capture read", fmt.Errorf("unexpected server message type %d", msgType))
		}
	}
}

// readUpdate consumes the body of a FramebufferUpdate message, painting
// each raw rectangle into img.
func (c *Client) readUpdate(img *image.RGBA) error {
	head, err := readFull(c.br, 3)
	if err != nil {
		return err
	}
	numRects := int(binary.BigEndian.Uint16(head[1:]))

	for i := 0; i < numRects; i++ {
		rectHead, err := readFull(c.br, 12)
		if err != nil {
			return err
		}
		x := int(binary.BigEndian.Uint16(rectHead[0:]))
		y := int(binary.BigEndian.Uint16(rectHead[2:]))
		w := int(binary.BigEndian.Uint16(rectHead[4:]))
		h := int(binary.BigEndian.Uint16(rectHead[6:]))
		encoding := int32(binary.BigEndian.Uint32(rectHead[8:]))

		if encoding != encodingRaw {
			return fmt.Errorf("server sent unsupported encoding %d", encoding)
		}
		if x+w > c.width || y+h > c.height {
			return fmt.Errorf("rect %dx%d at (%d,%d) exceeds framebuffer %dx%d", w, h, x, y, c.width, c.height)
		}

		row := make([]byte, w*4)
		for ry := 0; ry < h; ry++ {
			if _, err := io.ReadFull(c.br, row); err != nil {
				return err
			}
			off := img.PixOffset(x, y+ry)
			for rx := 0; rx < w; rx++ {
				// Negotiated format: little-endian 32bpp with shifts
				// r=16 g=8 b=0, so bytes arrive as B, G, R, pad.
				px := row[rx*4:]
				img.Pix[off+0] = px[2]
				img.Pix[off+1] = px[1]
				img.Pix[off+2] = px[0]
				img.Pix[off+3] = 0xFF
				off += 4
			}
		}
	}
	return nil
}

func (c *Client) skipColourMap() error {
	head, err := readFull(c.br, 5)
	if err != nil {
		return err
	}
	n := int(binary.BigEndian.Uint16(head[3:]))
	return discard(c.br, n*6)
}

func (c *Client) skipCutText() error {
	head, err := readFull(c.br, 7)
	if err != nil {
		return err
	}
	n := int(binary.BigEndian.Uint32(head[3:]))
	return discard(c.br, n)
}
