// Package vnc drives an unattended OS installation through a VM's virtual
// display and keyboard.
//
// The package speaks a restricted subset of the RFB protocol: a fixed
// low-fidelity 8-bit pixel format, raw rectangle updates, and desktop-resize
// notifications only. The low fidelity keeps screen hashes stable across
// runs. Nothing here is about rendering; snapshots exist to be hashed and
// compared.
//
// A Session is the exclusive owner of one display connection. All capture,
// input injection, and waiting must happen from a single goroutine; the
// Session performs no internal locking.
//
// The three layers, bottom to top:
//   - Session.Capture / Snapshot: full-frame pixel capture with resize
//     tracking, sub-region extraction, and content hashing.
//   - Session.SendText / SendKey: keystroke injection with fixed pacing.
//   - Session.Run: executes a Script (ordered Steps of Commands) against the
//     guest, with optional operator breakpoints and per-command recording.
//
// Screen waits poll until an exact hash match and have no internal timeout;
// callers bound them with the context they pass in.
package vnc
