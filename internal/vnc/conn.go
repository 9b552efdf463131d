package vnc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Client-to-server message types (RFB 3.8).
const (
	msgSetPixelFormat           = 0
	msgSetEncodings             = 2
	msgFramebufferUpdateRequest = 3
	msgKeyEvent                 = 4
)

// Server-to-client message types.
const msgFramebufferUpdate = 0

// Encodings negotiated with the server. Raw rectangles plus the DesktopSize
// pseudo-encoding are the only events this client understands.
const (
	encodingRaw         int32 = 0
	encodingDesktopSize int32 = -223
)

// The fixed pixel format requested from every server: 8 bits per pixel,
// 8-bit depth, true color with channel maxima 8/8/4 and shifts 5/2/0. Chosen
// for stable hashes and small frames, not fidelity.
var sessionPixelFormat = [16]byte{
	8,    // bits per pixel
	8,    // depth
	0,    // big endian
	1,    // true color
	0, 8, // red max
	0, 8, // green max
	0, 4, // blue max
	5, // red shift
	2, // green shift
	0, // blue shift
	0, 0, 0,
}

// eventKind discriminates the closed set of server events the dispatch loop
// consumes.
type eventKind int

const (
	eventPixels eventKind = iota
	eventResize
	eventFrameEnd
)

// serverEvent is one decoded server notification: a raw pixel block, a
// desktop resize, or the end of one update frame.
type serverEvent struct {
	kind   eventKind
	rect   Rect   // pixel block placement, or new desktop size for resizes
	pixels []byte // raw block content, eventPixels only
}

// handshake performs the RFB 3.8 version and security exchange and the
// pixel-format/encoding setup. Returns the server's initial desktop size.
func (s *Session) handshake() (width, height uint16, err error) {
	// Version exchange
	version := make([]byte, 12)
	if _, err := io.ReadFull(s.br, version); err != nil {
		return 0, 0, fmt.Errorf("failed to read server version: %w", err)
	}
	if string(version[:4]) != "RFB " {
		return 0, 0, fmt.Errorf("not an RFB server: %q", version)
	}
	if _, err := s.conn.Write([]byte("RFB 003.008\n")); err != nil {
		return 0, 0, fmt.Errorf("failed to send client version: %w", err)
	}

	// Security: the build VM's display listens on localhost with no auth.
	count, err := s.br.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read security types: %w", err)
	}
	if count == 0 {
		reason, _ := s.readString()
		return 0, 0, fmt.Errorf("server rejected connection: %s", reason)
	}
	types := make([]byte, count)
	if _, err := io.ReadFull(s.br, types); err != nil {
		return 0, 0, fmt.Errorf("failed to read security types: %w", err)
	}
	hasNone := false
	for _, t := range types {
		if t == 1 {
			hasNone = true
		}
	}
	if !hasNone {
		return 0, 0, fmt.Errorf("server requires authentication, types %v", types)
	}
	if _, err := s.conn.Write([]byte{1}); err != nil {
		return 0, 0, fmt.Errorf("failed to select security type: %w", err)
	}
	var result uint32
	if err := binary.Read(s.br, binary.BigEndian, &result); err != nil {
		return 0, 0, fmt.Errorf("failed to read security result: %w", err)
	}
	if result != 0 {
		reason, _ := s.readString()
		return 0, 0, fmt.Errorf("security handshake failed: %s", reason)
	}

	// ClientInit: shared session
	if _, err := s.conn.Write([]byte{1}); err != nil {
		return 0, 0, fmt.Errorf("failed to send client init: %w", err)
	}

	// ServerInit: initial size, server-native pixel format (ignored; we
	// replace it immediately), desktop name
	var init struct {
		Width, Height uint16
		PixelFormat   [16]byte
		NameLen       uint32
	}
	if err := binary.Read(s.br, binary.BigEndian, &init); err != nil {
		return 0, 0, fmt.Errorf("failed to read server init: %w", err)
	}
	if _, err := io.CopyN(io.Discard, s.br, int64(init.NameLen)); err != nil {
		return 0, 0, fmt.Errorf("failed to read desktop name: %w", err)
	}

	if err := s.writeSetPixelFormat(); err != nil {
		return 0, 0, err
	}
	if err := s.writeSetEncodings(); err != nil {
		return 0, 0, err
	}

	return init.Width, init.Height, nil
}

// readString reads a u32-length-prefixed string, used for handshake failure
// reasons.
func (s *Session) readString() (string, error) {
	var n uint32
	if err := binary.Read(s.br, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (s *Session) writeSetPixelFormat() error {
	msg := make([]byte, 0, 20)
	msg = append(msg, msgSetPixelFormat, 0, 0, 0)
	msg = append(msg, sessionPixelFormat[:]...)
	if _, err := s.conn.Write(msg); err != nil {
		return fmt.Errorf("failed to set pixel format: %w", err)
	}
	return nil
}

func (s *Session) writeSetEncodings() error {
	msg := make([]byte, 12)
	msg[0] = msgSetEncodings
	binary.BigEndian.PutUint16(msg[2:], 2)
	raw, desktopSize := encodingRaw, encodingDesktopSize
	binary.BigEndian.PutUint32(msg[4:], uint32(raw))
	binary.BigEndian.PutUint32(msg[8:], uint32(desktopSize))
	if _, err := s.conn.Write(msg); err != nil {
		return fmt.Errorf("failed to set encodings: %w", err)
	}
	return nil
}

// writeUpdateRequest asks the server for the given area. Non-incremental
// requests force a full repaint of the area.
func (s *Session) writeUpdateRequest(r Rect, incremental bool) error {
	msg := make([]byte, 10)
	msg[0] = msgFramebufferUpdateRequest
	if incremental {
		msg[1] = 1
	}
	binary.BigEndian.PutUint16(msg[2:], r.Left)
	binary.BigEndian.PutUint16(msg[4:], r.Top)
	binary.BigEndian.PutUint16(msg[6:], r.Width)
	binary.BigEndian.PutUint16(msg[8:], r.Height)
	if _, err := s.conn.Write(msg); err != nil {
		return &TransportError{Op: "update request", Err: err}
	}
	return nil
}

// writeKeyEvent sends one key transition for the given X keysym.
func (s *Session) writeKeyEvent(down bool, keysym uint32) error {
	msg := make([]byte, 8)
	msg[0] = msgKeyEvent
	if down {
		msg[1] = 1
	}
	binary.BigEndian.PutUint32(msg[4:], keysym)
	if _, err := s.conn.Write(msg); err != nil {
		return &TransportError{Op: "key event", Err: err}
	}
	return nil
}

// readEvent returns the next decoded server event, reading one full
// FramebufferUpdate message from the wire when no events are queued. A
// message or rectangle encoding outside the negotiated subset is a
// TransportError: the session is dead once the stream can no longer be
// framed.
func (s *Session) readEvent() (serverEvent, error) {
	if len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue = s.queue[1:]
		return ev, nil
	}

	msgType, err := s.br.ReadByte()
	if err != nil {
		return serverEvent{}, &TransportError{Op: "capture", Err: err}
	}
	if msgType != msgFramebufferUpdate {
		return serverEvent{}, &TransportError{
			Op:  "capture",
			Err: fmt.Errorf("unsupported server message type %d", msgType),
		}
	}

	var header struct {
		Pad   byte
		Rects uint16
	}
	if err := binary.Read(s.br, binary.BigEndian, &header); err != nil {
		return serverEvent{}, &TransportError{Op: "capture", Err: err}
	}

	for i := 0; i < int(header.Rects); i++ {
		var rect struct {
			Left, Top, Width, Height uint16
			Encoding                 int32
		}
		if err := binary.Read(s.br, binary.BigEndian, &rect); err != nil {
			return serverEvent{}, &TransportError{Op: "capture", Err: err}
		}
		r := Rect{Top: rect.Top, Left: rect.Left, Width: rect.Width, Height: rect.Height}

		switch rect.Encoding {
		case encodingRaw:
			// One byte per pixel in the negotiated format.
			pixels := make([]byte, int(rect.Width)*int(rect.Height))
			if _, err := io.ReadFull(s.br, pixels); err != nil {
				return serverEvent{}, &TransportError{Op: "capture", Err: err}
			}
			s.queue = append(s.queue, serverEvent{kind: eventPixels, rect: r, pixels: pixels})
		case encodingDesktopSize:
			s.queue = append(s.queue, serverEvent{kind: eventResize, rect: r})
		default:
			return serverEvent{}, &TransportError{
				Op:  "capture",
				Err: fmt.Errorf("unsupported encoding %d", rect.Encoding),
			}
		}
	}
	s.queue = append(s.queue, serverEvent{kind: eventFrameEnd})

	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, nil
}
