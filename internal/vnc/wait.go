package vnc

import (
	"context"
	"log"
	"math/rand"
	"time"
)

// settleDelay is the pause after a successful screen match before returning,
// so a single transient frame cannot advance the script.
const settleDelay = 1 * time.Second

// WaitForScreen polls full-frame captures until one hashes to target, then
// waits out the settle delay. Poll intervals are jittered between 500 ms and
// 1 s to avoid lock-stepping against guest timers.
//
// There is no internal timeout: an unreachable target blocks until the
// context is cancelled or the transport fails.
func (s *Session) WaitForScreen(ctx context.Context, target string) error {
	log.Printf("Waiting for screen hash to equal: %s", target)

	for {
		jitter := 500 + rand.Intn(500)
		if err := sleepContext(ctx, time.Duration(jitter)*time.Millisecond); err != nil {
			return err
		}

		snap, err := s.Capture()
		if err != nil {
			return err
		}
		if snap.Hash() == target {
			return sleepContext(ctx, settleDelay)
		}
	}
}

// WaitForScreenRect is WaitForScreen restricted to a sub-region of the
// frame, polling at a fixed 1 s interval. A region that falls outside the
// captured frame is a BoundsError, not a silent mismatch.
func (s *Session) WaitForScreenRect(ctx context.Context, target string, region Rect) error {
	log.Printf("Waiting for screen region hash to equal: %s", target)

	for {
		if err := sleepContext(ctx, 1*time.Second); err != nil {
			return err
		}

		snap, err := s.Capture()
		if err != nil {
			return err
		}
		trimmed, err := snap.Trim(region)
		if err != nil {
			return err
		}
		if trimmed.Hash() == target {
			return sleepContext(ctx, settleDelay)
		}
	}
}

// WaitForDuration pauses the script for the given number of seconds.
func (s *Session) WaitForDuration(ctx context.Context, seconds uint) error {
	log.Printf("Waiting %d seconds", seconds)
	return sleepContext(ctx, time.Duration(seconds)*time.Second)
}
