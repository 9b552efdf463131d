package vnc

import (
	"bufio"
	"os"
)

// Console supplies operator input at debug breakpoints. Implementations
// block until a line is available.
type Console interface {
	ReadLine() (string, error)
}

type stdinConsole struct {
	r *bufio.Reader
}

// NewStdinConsole returns a Console backed by standard input.
func NewStdinConsole() Console {
	return &stdinConsole{r: bufio.NewReader(os.Stdin)}
}

func (c *stdinConsole) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}
