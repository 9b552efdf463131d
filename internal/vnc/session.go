package vnc

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"time"
)

// DefaultScreenshotDir is where breakpoint captures and recording frames are
// written when Options does not override it.
const DefaultScreenshotDir = "screenshots"

// Options configures a display session for one build.
type Options struct {
	// Debug pauses at an operator breakpoint before every command except
	// plain waits. The operator can turn it off mid-run; it never turns
	// back on.
	Debug bool

	// Record captures a full frame after every executed command. Fixed for
	// the session's lifetime.
	Record bool

	// ScreenshotDir receives breakpoint and recording PNGs. Defaults to
	// DefaultScreenshotDir, created on demand.
	ScreenshotDir string

	// Console supplies operator input at breakpoints. Defaults to standard
	// input.
	Console Console
}

// Session is an exclusive connection to a VM's virtual display and keyboard.
// All methods must be called from the session's single owning goroutine.
type Session struct {
	conn  net.Conn
	br    *bufio.Reader
	queue []serverEvent

	// Current desktop dimensions; updated only by resize notifications.
	width  uint16
	height uint16

	debug         bool
	record        bool
	screenshotDir string
	console       Console
}

// Connect dials the display at addr (host:port) and negotiates the session's
// fixed pixel format and encodings.
func Connect(ctx context.Context, addr string, opts Options) (*Session, error) {
	log.Printf("Connecting to display at %s", addr)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}

	s := &Session{
		conn:          conn,
		br:            bufio.NewReader(conn),
		debug:         opts.Debug,
		record:        opts.Record,
		screenshotDir: opts.ScreenshotDir,
		console:       opts.Console,
	}
	if s.screenshotDir == "" {
		s.screenshotDir = DefaultScreenshotDir
	}
	if s.console == nil {
		s.console = NewStdinConsole()
	}

	width, height, err := s.handshake()
	if err != nil {
		conn.Close()
		return nil, &TransportError{Op: "connect", Err: err}
	}
	s.width = width
	s.height = height

	log.Printf("Connected to display (%d x %d)", width, height)
	return s, nil
}

// Close tears down the display connection. The session is unusable afterward.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Size returns the current desktop dimensions as of the last processed
// resize notification.
func (s *Session) Size() (width, height uint16) {
	return s.width, s.height
}

// Capture produces one full-frame snapshot at the current desktop size.
//
// Pending resize notifications are drained first so the update request is
// sized to the live dimensions. If the desktop resizes while the request is
// in flight, the stale request is abandoned and reissued at the new size.
// Returns only a pixel block that covers exactly the requested full area;
// smaller blocks and frame boundaries just continue the loop.
func (s *Session) Capture() (*Snapshot, error) {
	if err := s.drainPending(); err != nil {
		return nil, err
	}

	for {
		request := Rect{Top: 0, Left: 0, Width: s.width, Height: s.height}
		if err := s.writeUpdateRequest(request, false); err != nil {
			return nil, err
		}

		stale := false
		for !stale {
			ev, err := s.readEvent()
			if err != nil {
				return nil, err
			}

			switch ev.kind {
			case eventResize:
				s.width = ev.rect.Width
				s.height = ev.rect.Height
				stale = true
			case eventPixels:
				if ev.rect == request {
					return &Snapshot{
						Width:  ev.rect.Width,
						Height: ev.rect.Height,
						Pixels: ev.pixels,
					}, nil
				}
				// Partial repaint from an earlier request; keep reading.
			case eventFrameEnd:
				// Frame finished without our full-area block; ask again.
				stale = true
			}
		}
	}
}

// drainPending consumes any server events already buffered on the
// connection, applying resize notifications and discarding stale pixel
// blocks. Returns once the wire goes quiet at a message boundary.
func (s *Session) drainPending() error {
	for {
		// Process anything already decoded without touching the wire.
		for len(s.queue) > 0 {
			ev, err := s.readEvent()
			if err != nil {
				return err
			}
			if ev.kind == eventResize {
				s.width = ev.rect.Width
				s.height = ev.rect.Height
			}
		}

		// Peek with a short deadline: if no message starts promptly, the
		// backlog is clear. The deadline only ever applies between
		// messages, so a timeout cannot split one mid-read.
		if err := s.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
			return &TransportError{Op: "capture", Err: err}
		}
		_, err := s.br.Peek(1)
		if resetErr := s.conn.SetReadDeadline(time.Time{}); resetErr != nil {
			return &TransportError{Op: "capture", Err: resetErr}
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return nil
			}
			return &TransportError{Op: "capture", Err: err}
		}

		ev, err := s.readEvent()
		if err != nil {
			return err
		}
		if ev.kind == eventResize {
			s.width = ev.rect.Width
			s.height = ev.rect.Height
		}
	}
}

// sleepContext pauses for d or until the context is done, whichever comes
// first.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait aborted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
