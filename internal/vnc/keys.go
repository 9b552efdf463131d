package vnc

import (
	"strings"
	"time"
	"unicode"
)

// X keysyms used by the injector. Printable characters map into the Unicode
// keysym range at 0x01000000 + codepoint.
const (
	KeyEnter     = 0xff0d
	KeyTab       = 0xff09
	KeySpacebar  = 0x0020
	KeyLeftShift = 0xffe1
	KeyLeftSuper = 0xffeb

	unicodeKeysymOffset = 0x01000000
)

// Punctuation that sits on the shifted row of a US keyboard layout. These
// need a shift modifier just like uppercase letters.
const shiftedPunctuation = "~!#$%^&*()_+"

// textKeyDelay is the pause after each injected character. Guest installers
// have tiny keyboard buffers during early boot; typing faster than this
// loses keystrokes.
const textKeyDelay = 200 * time.Millisecond

// SendText types the given text into the guest one character at a time.
// Characters needing a shift modifier are wrapped in a shift press/release
// pair. Each character is followed by the fixed pacing delay.
func (s *Session) SendText(text string) error {
	for _, ch := range text {
		keysym := uint32(unicodeKeysymOffset + ch)
		shifted := unicode.IsUpper(ch) || strings.ContainsRune(shiftedPunctuation, ch)

		if shifted {
			if err := s.writeKeyEvent(true, KeyLeftShift); err != nil {
				return err
			}
		}
		if err := s.writeKeyEvent(true, keysym); err != nil {
			return err
		}
		if err := s.writeKeyEvent(false, keysym); err != nil {
			return err
		}
		if shifted {
			if err := s.writeKeyEvent(false, KeyLeftShift); err != nil {
				return err
			}
		}

		time.Sleep(textKeyDelay)
	}
	return nil
}

// SendKey presses and releases a single special key with no extra delay.
func (s *Session) SendKey(keysym uint32) error {
	if err := s.writeKeyEvent(true, keysym); err != nil {
		return err
	}
	return s.writeKeyEvent(false, keysym)
}
