package vnc

import (
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Rect describes a sub-region of a snapshot. Top/Left are offsets from the
// snapshot origin; the region is valid only when fully contained in the
// source.
type Rect struct {
	Top    uint16
	Left   uint16
	Width  uint16
	Height uint16
}

// Snapshot is a captured frame: one byte per pixel in the session's
// negotiated 8-bit format, row-major. Immutable once produced.
//
// Invariant: len(Pixels) == int(Width)*int(Height).
type Snapshot struct {
	Width  uint16
	Height uint16
	Pixels []byte
}

// Hash returns the hex BLAKE3 digest of the pixel bytes. Dimensions are not
// part of the input; the digest identifies content, it is not a security
// primitive.
func (s *Snapshot) Hash() string {
	sum := blake3.Sum256(s.Pixels)
	return hex.EncodeToString(sum[:])
}

// Trim returns a new snapshot containing the given region, copied row-major
// so that output pixel (x, y) equals source pixel (r.Top+y, r.Left+x).
// Returns a *BoundsError if the region does not fit; it is never clamped.
func (s *Snapshot) Trim(r Rect) (*Snapshot, error) {
	if int(r.Top)+int(r.Height) > int(s.Height) || int(r.Left)+int(r.Width) > int(s.Width) {
		return nil, &BoundsError{Region: r, Width: s.Width, Height: s.Height}
	}

	w := int(r.Width)
	h := int(r.Height)
	pixels := make([]byte, w*h)
	for y := 0; y < h; y++ {
		srcOff := (int(r.Top)+y)*int(s.Width) + int(r.Left)
		copy(pixels[y*w:(y+1)*w], s.Pixels[srcOff:srcOff+w])
	}

	return &Snapshot{Width: r.Width, Height: r.Height, Pixels: pixels}, nil
}

// WritePNG persists the snapshot as an 8-bit grayscale PNG, creating parent
// directories as needed.
func (s *Snapshot) WritePNG(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	img := &image.Gray{
		Pix:    s.Pixels,
		Stride: int(s.Width),
		Rect:   image.Rect(0, 0, int(s.Width), int(s.Height)),
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create screenshot file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode screenshot: %w", err)
	}

	log.Printf("Saved screenshot to: %s", path)
	return nil
}
