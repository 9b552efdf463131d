package vnc

import "fmt"

// CommandKind discriminates the closed set of scripted instructions.
type CommandKind int

const (
	CommandEnter CommandKind = iota
	CommandSpacebar
	CommandTab
	CommandLeftSuper
	CommandType
	CommandWait
	CommandWaitScreen
	CommandWaitScreenRect
)

// Command is one immutable scripted instruction. Only the fields relevant to
// its Kind are set.
type Command struct {
	Kind    CommandKind
	Text    string // CommandType
	Seconds uint   // CommandWait
	Hash    string // CommandWaitScreen, CommandWaitScreenRect
	Region  Rect   // CommandWaitScreenRect
}

func (c Command) String() string {
	switch c.Kind {
	case CommandEnter:
		return "Enter"
	case CommandSpacebar:
		return "Spacebar"
	case CommandTab:
		return "Tab"
	case CommandLeftSuper:
		return "LeftSuper"
	case CommandType:
		return fmt.Sprintf("Type(%q)", c.Text)
	case CommandWait:
		return fmt.Sprintf("Wait(%d)", c.Seconds)
	case CommandWaitScreen:
		return fmt.Sprintf("WaitScreen(%s)", c.Hash)
	case CommandWaitScreenRect:
		return fmt.Sprintf("WaitScreenRect(%s, %dx%d+%d+%d)",
			c.Hash, c.Region.Width, c.Region.Height, c.Region.Left, c.Region.Top)
	default:
		return fmt.Sprintf("Command(%d)", c.Kind)
	}
}

// Step is an ordered group of commands executed as one logical stage.
type Step []Command

// Script is the full ordered boot sequence for a template. Steps and the
// commands within them are never reordered or parallelized.
type Script []Step

// The builders below assemble the common step shapes used by molds. The
// trailing waits give installers time to react before the next step lands.

// EnterLine types text and presses Enter.
func EnterLine(text string) Step {
	return Step{
		{Kind: CommandType, Text: text},
		{Kind: CommandEnter},
		{Kind: CommandWait, Seconds: 2},
	}
}

// PressEnter presses Enter on its own.
func PressEnter() Step {
	return Step{
		{Kind: CommandEnter},
		{Kind: CommandWait, Seconds: 2},
	}
}

// PressSpacebar presses the space bar.
func PressSpacebar() Step {
	return Step{
		{Kind: CommandSpacebar},
		{Kind: CommandWait, Seconds: 2},
	}
}

// TabTo types text and presses Tab, for moving through installer form
// fields.
func TabTo(text string) Step {
	return Step{
		{Kind: CommandType, Text: text},
		{Kind: CommandTab},
		{Kind: CommandWait, Seconds: 2},
	}
}

// PressTab presses Tab on its own.
func PressTab() Step {
	return Step{
		{Kind: CommandTab},
		{Kind: CommandWait, Seconds: 2},
	}
}

// SuperKey presses the left super (logo) key.
func SuperKey() Step {
	return Step{
		{Kind: CommandLeftSuper},
		{Kind: CommandWait, Seconds: 2},
	}
}

// Input types text without submitting it.
func Input(text string) Step {
	return Step{
		{Kind: CommandType, Text: text},
		{Kind: CommandWait, Seconds: 1},
	}
}

// Sleep waits the given number of seconds.
func Sleep(seconds uint) Step {
	return Step{{Kind: CommandWait, Seconds: seconds}}
}

// ScreenMatch blocks until the full frame hashes to hash.
func ScreenMatch(hash string) Step {
	return Step{{Kind: CommandWaitScreen, Hash: hash}}
}

// ScreenRectMatch blocks until the given region of the frame hashes to hash.
func ScreenRectMatch(hash string, top, left, width, height uint16) Step {
	return Step{{
		Kind:   CommandWaitScreenRect,
		Hash:   hash,
		Region: Rect{Top: top, Left: left, Width: width, Height: height},
	}}
}
