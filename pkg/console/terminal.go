package console

import (
	"bufio"
	"fmt"
	"io"

	"golang.org/x/term"
)

const prompt = "You: "

// Terminal reads lines with an editable prompt. The terminal is switched to
// raw mode only while a line is read.
type Terminal struct {
	fd int
	t  *term.Terminal
}

func NewTerminal(fd int, rw io.ReadWriter) *Terminal {
	return &Terminal{fd: fd, t: term.NewTerminal(rw, prompt)}
}

func (t *Terminal) ReadLine() (string, error) {
	oldState, err := term.MakeRaw(t.fd)
	if err != nil {
		return "", err
	}

	if width, height, err := term.GetSize(t.fd); err == nil {
		_ = t.t.SetSize(width, height)
	}

	line, err := t.t.ReadLine()
	restoreErr := term.Restore(t.fd, oldState)
	if err != nil {
		return "", err
	}
	return line, restoreErr
}

// Write writes to the terminal, translating line endings.
func (t *Terminal) Write(p []byte) (int, error) {
	return t.t.Write(p)
}

// Lines reads lines from a plain reader such as a pipe.
type Lines struct {
	out     io.Writer
	scanner *bufio.Scanner
}

func NewLines(in io.Reader, out io.Writer) *Lines {
	return &Lines{out: out, scanner: bufio.NewScanner(in)}
}

func (l *Lines) ReadLine() (string, error) {
	if l.out != nil {
		fmt.Fprint(l.out, prompt)
	}
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return l.scanner.Text(), nil
}
