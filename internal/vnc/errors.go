package vnc

import "fmt"

// TransportError indicates the display connection failed or the server sent
// something outside the negotiated protocol subset. It is fatal to the
// session; callers must not retry through the same Session.
type TransportError struct {
	Op  string // the operation in flight, e.g. "capture" or "key event"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("display transport failed during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BoundsError reports a requested region that does not fit inside the source
// snapshot. The region is never clamped; the caller asked for something the
// frame cannot provide.
type BoundsError struct {
	Region        Rect
	Width, Height uint16 // dimensions of the source snapshot
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("region %dx%d+%d+%d exceeds snapshot bounds %dx%d",
		e.Region.Width, e.Region.Height, e.Region.Left, e.Region.Top, e.Width, e.Height)
}
