package commands

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/abiosoft/readline"
	"github.com/mattn/go-isatty"
)

// LineReader reads the shell's input one line at a time. Readline returns
// io.EOF once the input is exhausted and readline.ErrInterrupt if the line
// was abandoned with ^C.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// IsTerminal reports whether the file is connected to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// NewLineReader creates an editing reader with history if in is a terminal.
// Otherwise lines are read as they are, without a prompt.
func NewLineReader(in *os.File, out io.Writer, prompt, historyFile string) (LineReader, error) {
	if !IsTerminal(in) {
		return NewPlainReader(in), nil
	}
	return NewTerminalReader(in, out, prompt, historyFile)
}

// TerminalReader reads lines with readline.
type TerminalReader struct {
	rl   *readline.Instance
	gate *gatedReader
}

var _ LineReader = (*TerminalReader)(nil)

// NewTerminalReader creates a readline backed reader for the terminal in.
func NewTerminalReader(in *os.File, out io.Writer, prompt, historyFile string) (*TerminalReader, error) {
	gate := newGatedReader(in)

	cfg := &readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		Stdin:           gate,
		Stdout:          out,
		Stderr:          out,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		FuncIsTerminal: func() bool {
			return true
		},
	}
	if err := cfg.Init(); err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}

	return &TerminalReader{rl: rl, gate: gate}, nil
}

// Readline reads a single line. The terminal is only read while a line is
// being edited, input typed while a foreground program runs is left for it.
func (t *TerminalReader) Readline() (string, error) {
	t.gate.open()
	return t.rl.Readline()
}

func (t *TerminalReader) Close() error {
	return t.rl.Close()
}

// gatedReader reads a byte at a time and only while open. Reaching the end of
// a line closes it again.
type gatedReader struct {
	in     io.Reader
	permit chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func newGatedReader(in io.Reader) *gatedReader {
	return &gatedReader{
		in:     in,
		permit: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (g *gatedReader) open() {
	select {
	case g.permit <- struct{}{}:
	default:
	}
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	select {
	case <-g.permit:
	case <-g.done:
		return 0, io.EOF
	}

	n, err := g.in.Read(p[:1])
	if n == 1 {
		switch p[0] {
		case '\r', '\n', readline.CharInterrupt:
			// The line is complete, wait for the next open.
			return n, err
		}
	}
	if err == nil {
		g.open()
	}
	return n, err
}

func (g *gatedReader) Close() error {
	g.closeOnce.Do(func() {
		close(g.done)
	})
	return nil
}

// PlainReader reads lines from non-interactive input.
type PlainReader struct {
	r *bufio.Reader
}

var _ LineReader = (*PlainReader)(nil)

// NewPlainReader creates a reader that never consumes input past the end of
// the current line, so programs started by the shell can read the rest.
func NewPlainReader(in io.Reader) *PlainReader {
	return &PlainReader{r: bufio.NewReader(byteReader{in})}
}

func (p *PlainReader) Readline() (string, error) {
	line, err := p.r.ReadString('\n')
	switch {
	case err == io.EOF && line != "":
		// Unterminated last line.
	case err != nil:
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *PlainReader) Close() error {
	return nil
}

// byteReader limits every read to a single byte.
type byteReader struct {
	io.Reader
}

func (b byteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return b.Reader.Read(p)
}
