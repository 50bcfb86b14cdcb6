// Package rfbtest provides an in-process RFB server for exercising the
// engine against a scriptable framebuffer without a real VNC endpoint.
package rfbtest

import (
	"encoding/binary"
	"image"
	"image/draw"
	"io"
	"net"
	"sync"
)

// RecordedKey is one key event received from the client.
type RecordedKey struct {
	Code  uint32
	Press bool
}

// RecordedPointer is one pointer event received from the client.
type RecordedPointer struct {
	X, Y    int
	Buttons uint8
}

// Server is a minimal RFB 3.8 server: security type None, Raw encoding
// only, one framebuffer that tests can swap at any time.
type Server struct {
	listener net.Listener

	mu      sync.Mutex
	frame   *image.RGBA
	keys    []RecordedKey
	pointer []RecordedPointer
	// FrameHook, when set, is called before every framebuffer update and
	// may replace the frame (e.g. to simulate an animation).
	FrameHook func(n int) *image.RGBA
	updates   int
	conns     map[net.Conn]struct{}

	wg     sync.WaitGroup
	closed bool
}

// Start launches a server with the given desktop size on a random
// loopback port.
func Start(width, height int) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		frame:    image.NewRGBA(image.Rect(0, 0, width, height)),
		conns:    make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the endpoint to connect to.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// SetFrame replaces the framebuffer served to clients.
func (s *Server) SetFrame(img *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = img
}

// Keys returns the key events received so far, in arrival order.
func (s *Server) Keys() []RecordedKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedKey, len(s.keys))
	copy(out, s.keys)
	return out
}

// Pointers returns the pointer events received so far, in arrival order.
func (s *Server) Pointers() []RecordedPointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedPointer, len(s.pointer))
	copy(out, s.pointer)
	return out
}

// Close stops the listener, drops open connections and waits for the
// handlers to finish. Safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.listener.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				conn.Close()
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
			}()
			s.serve(conn)
		}()
	}
}

func (s *Server) serve(conn net.Conn) {
	s.mu.Lock()
	bounds := s.frame.Bounds()
	s.mu.Unlock()
	w, h := bounds.Dx(), bounds.Dy()

	// Handshake.
	if _, err := conn.Write([]byte("RFB 003.008\n")); err != nil {
		return
	}
	if _, err := readN(conn, 12); err != nil {
		return
	}
	// One security type: None. Client echoes its choice, then gets OK.
	if _, err := conn.Write([]byte{1, 1}); err != nil {
		return
	}
	if _, err := readN(conn, 1); err != nil {
		return
	}
	if _, err := conn.Write([]byte{0, 0, 0, 0}); err != nil {
		return
	}
	// ClientInit.
	if _, err := readN(conn, 1); err != nil {
		return
	}
	// ServerInit.
	name := "rfbtest"
	init := make([]byte, 24+len(name))
	binary.BigEndian.PutUint16(init[0:], uint16(w))
	binary.BigEndian.PutUint16(init[2:], uint16(h))
	init[4] = 32 // bits per pixel
	init[5] = 24 // depth
	init[7] = 1  // true colour
	binary.BigEndian.PutUint16(init[8:], 255)
	binary.BigEndian.PutUint16(init[10:], 255)
	binary.BigEndian.PutUint16(init[12:], 255)
	init[14] = 16
	init[15] = 8
	init[16] = 0
	binary.BigEndian.PutUint32(init[20:], uint32(len(name)))
	copy(init[24:], name)
	if _, err := conn.Write(init); err != nil {
		return
	}

	for {
		msgType, err := readN(conn, 1)
		if err != nil {
			return
		}
		switch msgType[0] {
		case 0: // SetPixelFormat
			if _, err := readN(conn, 19); err != nil {
				return
			}
		case 2: // SetEncodings
			head, err := readN(conn, 3)
			if err != nil {
				return
			}
			n := int(binary.BigEndian.Uint16(head[1:]))
			if _, err := readN(conn, n*4); err != nil {
				return
			}
		case 3: // FramebufferUpdateRequest
			if _, err := readN(conn, 9); err != nil {
				return
			}
			if err := s.sendUpdate(conn, w, h); err != nil {
				return
			}
		case 4: // KeyEvent
			body, err := readN(conn, 7)
			if err != nil {
				return
			}
			s.mu.Lock()
			s.keys = append(s.keys, RecordedKey{
				Code:  binary.BigEndian.Uint32(body[3:]),
				Press: body[0] == 1,
			})
			s.mu.Unlock()
		case 5: // PointerEvent
			body, err := readN(conn, 5)
			if err != nil {
				return
			}
			s.mu.Lock()
			s.pointer = append(s.pointer, RecordedPointer{
				Buttons: body[0],
				X:       int(binary.BigEndian.Uint16(body[1:])),
				Y:       int(binary.BigEndian.Uint16(body[3:])),
			})
			s.mu.Unlock()
		case 6: // ClientCutText
			head, err := readN(conn, 7)
			if err != nil {
				return
			}
			n := int(binary.BigEndian.Uint32(head[3:]))
			if _, err := readN(conn, n); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) sendUpdate(conn net.Conn, w, h int) error {
	s.mu.Lock()
	if s.FrameHook != nil {
		if next := s.FrameHook(s.updates); next != nil {
			s.frame = next
		}
	}
	s.updates++
	frame := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(frame, frame.Bounds(), s.frame, s.frame.Bounds().Min, draw.Src)
	s.mu.Unlock()

	head := make([]byte, 16)
	head[0] = 0 // FramebufferUpdate
	binary.BigEndian.PutUint16(head[2:], 1)
	binary.BigEndian.PutUint16(head[8:], uint16(w))
	binary.BigEndian.PutUint16(head[10:], uint16(h))
	binary.BigEndian.PutUint32(head[12:], 0) // Raw
	if _, err := conn.Write(head); err != nil {
		return err
	}

	// Pixels in the negotiated little-endian BGRX layout.
	buf := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := frame.PixOffset(x, y)
			i := (y*w + x) * 4
			buf[i+0] = frame.Pix[off+2]
			buf[i+1] = frame.Pix[off+1]
			buf[i+2] = frame.Pix[off+0]
			buf[i+3] = 0
		}
	}
	_, err := conn.Write(buf)
	return err
}

func readN(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
