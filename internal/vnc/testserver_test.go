package vnc

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// keyPress is one key transition received by the test server.
type keyPress struct {
	down   bool
	keysym uint32
}

// testServer is a minimal in-process display server speaking the restricted
// protocol subset: version/security handshake, raw rectangle updates, and
// desktop-resize notifications. It records every key event it receives.
type testServer struct {
	t  *testing.T
	ln net.Listener

	mu            sync.Mutex
	width, height uint16
	pixelAt       func(x, y int) byte
	pendingResize *[2]uint16
	junkResponse  bool
	onKey         func(down bool, keysym uint32)

	keys  []keyPress
	keyCh chan keyPress
}

func newTestServer(t *testing.T, width, height uint16) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &testServer{
		t:      t,
		ln:     ln,
		width:  width,
		height: height,
		pixelAt: func(x, y int) byte {
			return byte(x ^ y)
		},
		keyCh: make(chan keyPress, 256),
	}
	t.Cleanup(func() { ln.Close() })

	go s.acceptLoop()
	return s
}

func (s *testServer) addr() string {
	return s.ln.Addr().String()
}

func (s *testServer) setPixelAt(f func(x, y int) byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pixelAt = f
}

func (s *testServer) setPendingResize(width, height uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingResize = &[2]uint16{width, height}
}

// frame renders the current full frame under the lock.
func (s *testServer) frame(width, height uint16) []byte {
	pixels := make([]byte, int(width)*int(height))
	for y := 0; y < int(height); y++ {
		for x := 0; x < int(width); x++ {
			pixels[y*int(width)+x] = s.pixelAt(x, y)
		}
	}
	return pixels
}

func (s *testServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *testServer) serve(conn net.Conn) {
	defer conn.Close()

	// Version and no-auth security handshake.
	if _, err := conn.Write([]byte("RFB 003.008\n")); err != nil {
		return
	}
	buf := make([]byte, 12)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return
	}
	if _, err := conn.Write([]byte{1, 1}); err != nil {
		return
	}
	if _, err := io.ReadFull(conn, buf[:1]); err != nil {
		return
	}
	if err := binary.Write(conn, binary.BigEndian, uint32(0)); err != nil {
		return
	}
	if _, err := io.ReadFull(conn, buf[:1]); err != nil { // ClientInit
		return
	}

	// ServerInit
	s.mu.Lock()
	init := make([]byte, 0, 28)
	init = binary.BigEndian.AppendUint16(init, s.width)
	init = binary.BigEndian.AppendUint16(init, s.height)
	init = append(init, sessionPixelFormat[:]...)
	init = binary.BigEndian.AppendUint32(init, 4)
	init = append(init, []byte("test")...)
	s.mu.Unlock()
	if _, err := conn.Write(init); err != nil {
		return
	}

	for {
		msgType := make([]byte, 1)
		if _, err := io.ReadFull(conn, msgType); err != nil {
			return
		}

		switch msgType[0] {
		case msgSetPixelFormat:
			if _, err := io.CopyN(io.Discard, conn, 19); err != nil {
				return
			}
		case msgSetEncodings:
			var hdr struct {
				Pad   byte
				Count uint16
			}
			if err := binary.Read(conn, binary.BigEndian, &hdr); err != nil {
				return
			}
			if _, err := io.CopyN(io.Discard, conn, int64(hdr.Count)*4); err != nil {
				return
			}
		case msgFramebufferUpdateRequest:
			var req struct {
				Incremental              byte
				Left, Top, Width, Height uint16
			}
			if err := binary.Read(conn, binary.BigEndian, &req); err != nil {
				return
			}
			if err := s.respondUpdate(conn, req.Left, req.Top, req.Width, req.Height); err != nil {
				return
			}
		case msgKeyEvent:
			var ev struct {
				Down   byte
				Pad    [2]byte
				Keysym uint32
			}
			if err := binary.Read(conn, binary.BigEndian, &ev); err != nil {
				return
			}
			press := keyPress{down: ev.Down == 1, keysym: ev.Keysym}
			s.mu.Lock()
			s.keys = append(s.keys, press)
			hook := s.onKey
			s.mu.Unlock()
			if hook != nil {
				hook(press.down, press.keysym)
			}
			s.keyCh <- press
		default:
			return
		}
	}
}

// respondUpdate answers one framebuffer update request: a junk byte when
// misbehavior is requested, a desktop-resize notification when one is
// pending, or a raw rectangle covering the requested area.
func (s *testServer) respondUpdate(conn net.Conn, left, top, width, height uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.junkResponse {
		_, err := conn.Write([]byte{0xff})
		return err
	}

	msg := make([]byte, 0, 16)
	msg = append(msg, msgFramebufferUpdate, 0)
	msg = binary.BigEndian.AppendUint16(msg, 1)

	if s.pendingResize != nil {
		s.width = s.pendingResize[0]
		s.height = s.pendingResize[1]
		s.pendingResize = nil

		msg = binary.BigEndian.AppendUint16(msg, 0)
		msg = binary.BigEndian.AppendUint16(msg, 0)
		msg = binary.BigEndian.AppendUint16(msg, s.width)
		msg = binary.BigEndian.AppendUint16(msg, s.height)
		desktopSize := encodingDesktopSize
		msg = binary.BigEndian.AppendUint32(msg, uint32(desktopSize))
		_, err := conn.Write(msg)
		return err
	}

	msg = binary.BigEndian.AppendUint16(msg, left)
	msg = binary.BigEndian.AppendUint16(msg, top)
	msg = binary.BigEndian.AppendUint16(msg, width)
	msg = binary.BigEndian.AppendUint16(msg, height)
	raw := encodingRaw
	msg = binary.BigEndian.AppendUint32(msg, uint32(raw))
	msg = append(msg, s.frame(width, height)...)
	_, err := conn.Write(msg)
	return err
}

// collectKeys blocks until n key events have arrived or the timeout expires.
func (s *testServer) collectKeys(t *testing.T, n int) []keyPress {
	t.Helper()

	keys := make([]keyPress, 0, n)
	deadline := time.After(5 * time.Second)
	for len(keys) < n {
		select {
		case k := <-s.keyCh:
			keys = append(keys, k)
		case <-deadline:
			t.Fatalf("timed out waiting for key events: got %d, want %d", len(keys), n)
		}
	}
	return keys
}

// scriptedConsole feeds predetermined operator input and fails the run when
// input is requested past the end.
type scriptedConsole struct {
	lines []string
}

func (c *scriptedConsole) ReadLine() (string, error) {
	if len(c.lines) == 0 {
		return "", io.EOF
	}
	line := c.lines[0]
	c.lines = c.lines[1:]
	return line, nil
}
