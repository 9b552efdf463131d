package vnc

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
)

// Run executes the script against the guest: every step, every command, in
// strict order on the calling goroutine.
//
// In debug mode each command except a plain wait suspends at an operator
// breakpoint first. In record mode a full frame is captured after every
// command and written under the session's screenshot directory, named by the
// 1-based command counter.
//
// The first failing command aborts the run.
func (s *Session) Run(ctx context.Context, script Script) error {
	log.Printf("Running bootstrap sequence")

	counter := 0
	for _, step := range script {
		for _, cmd := range step {
			counter++

			if s.debug && cmd.Kind != CommandWait {
				if err := s.breakpoint(cmd); err != nil {
					return err
				}
			}

			if err := s.execute(ctx, cmd); err != nil {
				return fmt.Errorf("bootstrap command %d (%s) failed: %w", counter, cmd, err)
			}

			if s.record {
				snap, err := s.Capture()
				if err != nil {
					return err
				}
				path := filepath.Join(s.screenshotDir, fmt.Sprintf("%d.png", counter))
				if err := snap.WritePNG(path); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Session) execute(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandEnter:
		return s.SendKey(KeyEnter)
	case CommandSpacebar:
		return s.SendKey(KeySpacebar)
	case CommandTab:
		return s.SendKey(KeyTab)
	case CommandLeftSuper:
		return s.SendKey(KeyLeftSuper)
	case CommandType:
		return s.SendText(cmd.Text)
	case CommandWait:
		return s.WaitForDuration(ctx, cmd.Seconds)
	case CommandWaitScreen:
		return s.WaitForScreen(ctx, cmd.Hash)
	case CommandWaitScreenRect:
		return s.WaitForScreenRect(ctx, cmd.Hash, cmd.Region)
	default:
		return fmt.Errorf("unknown command kind %d", cmd.Kind)
	}
}

// breakpoint blocks on the operator console until the run may continue.
//
// Commands: "c" continues, "s [top left width height]" captures the screen
// (full frame or the given region), reports its hash and dimensions, and
// writes it as a PNG named by that hash; "q" disables debug mode for the
// rest of the run without aborting it. Anything else re-prompts.
func (s *Session) breakpoint(cmd Command) error {
	for {
		log.Printf("(breakpoint)['c' to continue, 's' to screenshot, 'q' to quit debugging] Next command: %s", cmd)

		line, err := s.console.ReadLine()
		if err != nil {
			return fmt.Errorf("operator console failed: %w", err)
		}
		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}

		switch words[0] {
		case "c":
			return nil
		case "s":
			snap, err := s.Capture()
			if err != nil {
				return err
			}
			if len(words) >= 5 {
				region, err := parseRegion(words[1:5])
				if err != nil {
					return err
				}
				snap, err = snap.Trim(region)
				if err != nil {
					return err
				}
			}

			hash := snap.Hash()
			log.Printf("Captured screen hash: %s (%d x %d)", hash, snap.Width, snap.Height)

			path := filepath.Join(s.screenshotDir, hash+".png")
			if err := snap.WritePNG(path); err != nil {
				return err
			}
		case "q":
			s.debug = false
			return nil
		}
	}
}

// parseRegion parses "top left width height" breakpoint arguments.
func parseRegion(words []string) (Rect, error) {
	vals := make([]uint16, 4)
	for i, w := range words {
		v, err := strconv.ParseUint(w, 10, 16)
		if err != nil {
			return Rect{}, fmt.Errorf("invalid region argument %q: %w", w, err)
		}
		vals[i] = uint16(v)
	}
	return Rect{Top: vals[0], Left: vals[1], Width: vals[2], Height: vals[3]}, nil
}
