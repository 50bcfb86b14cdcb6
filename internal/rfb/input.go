package rfb

import (
	"encoding/binary"
	"time"
)

// Pointer button bits in the RFB button mask.
const (
	ButtonLeft   uint8 = 1 << 0
	ButtonMiddle uint8 = 1 << 1
	ButtonRight  uint8 = 1 << 2
	ButtonUp     uint8 = 1 << 3
	ButtonDown   uint8 = 1 << 4
)

// Event is one low-level device event. Exactly one of the two concrete
// types below implements it.
type Event interface {
	encode(buf []byte) int
}

// PointerEvent positions the pointer and sets the full button mask. A held
// button must stay set in the mask of every subsequent event until its
// release.
type PointerEvent struct {
	X, Y    int
	Buttons uint8
}

func (e PointerEvent) encode(buf []byte) int {
	buf[0] = msgPointerEvent
	buf[1] = e.Buttons
	binary.BigEndian.PutUint16(buf[2:], uint16(e.X))
	binary.BigEndian.PutUint16(buf[4:], uint16(e.Y))
	return 6
}

// KeyEvent presses or releases one key. Code is the key code in the
// endpoint's keymap space (see the hid package for the default map).
type KeyEvent struct {
	Code  uint32
	Press bool
}

func (e KeyEvent) encode(buf []byte) int {
	buf[0] = msgKeyEvent
	if e.Press {
		buf[1] = 1
	}
	binary.BigEndian.PutUint32(buf[4:], e.Code)
	return 8
}

// SendEvents injects the events in order. All events are marshalled into a
// single write so the server observes them without interleaving; partial
// intermediate state (a key held down, a button pressed) is externally
// visible, so order is part of the contract.
func (c *Client) SendEvents(events []Event) error {
	if len(events) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUsable("send input"); err != nil {
		return err
	}

	buf := make([]byte, 0, len(events)*8)
	scratch := make([]byte, 8)
	for _, ev := range events {
		n := ev.encode(scratch)
		buf = append(buf, scratch[:n]...)
		for i := range scratch {
			scratch[i] = 0
		}
	}

	_ = c.conn.SetDeadline(time.Now().Add(c.callTimeout))
	defer c.conn.SetDeadline(time.Time{})
	if _, err := c.conn.Write(buf); err != nil {
		return c.fail("send input", err)
	}
	return nil
}
