package rfb

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Protocol constants for RFB 3.8 (RFC 6143).
const (
	protocolVersion = "RFB 003.008\n"

	securityInvalid = 0
	securityNone    = 1

	// Client to server message types.
	msgSetPixelFormat           = 0
	msgSetEncodings             = 2
	msgFramebufferUpdateRequest = 3
	msgKeyEvent                 = 4
	msgPointerEvent             = 5

	// Server to client message types.
	msgFramebufferUpdate   = 0
	msgSetColourMapEntries = 1
	msgBell                = 2
	msgServerCutText       = 3

	encodingRaw = 0
)

// pixelFormat is the 16-byte wire pixel format description.
type pixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    uint8
	TrueColour   uint8
	RedMax       uint16
	GreenMax     uint16
	BlueMax      uint16
	RedShift     uint8
	GreenShift   uint8
	BlueShift    uint8
}

// rgbaFormat is the format the client always negotiates: 32bpp true colour
// with 8-bit channels at fixed shifts, so raw rectangles decode with simple
// byte arithmetic.
var rgbaFormat = pixelFormat{
	BitsPerPixel: 32,
	Depth:        24,
	TrueColour:   1,
	RedMax:       255,
	GreenMax:     255,
	BlueMax:      255,
	RedShift:     16,
	GreenShift:   8,
	BlueShift:    0,
}

func (p pixelFormat) encode(buf []byte) {
	buf[0] = p.BitsPerPixel
	buf[1] = p.Depth
	buf[2] = p.BigEndian
	buf[3] = p.TrueColour
	binary.BigEndian.PutUint16(buf[4:], p.RedMax)
	binary.BigEndian.PutUint16(buf[6:], p.GreenMax)
	binary.BigEndian.PutUint16(buf[8:], p.BlueMax)
	buf[10] = p.RedShift
	buf[11] = p.GreenShift
	buf[12] = p.BlueShift
	// buf[13:16] is padding
}

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func discard(r io.Reader, n int) error {
	_, err := io.CopyN(io.Discard, r, int64(n))
	return err
}

// readReason reads a length-prefixed failure reason string sent by the
// server during the handshake.
func readReason(r io.Reader) (string, error) {
	lenBuf, err := readFull(r, 4)
	if err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	if n > 4096 {
		return "", fmt.Errorf("unreasonable reason length %d", n)
	}
	reason, err := readFull(r, int(n))
	if err != nil {
		return "", err
	}
	return string(reason), nil
}
