package bootstrap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// Prompter asks the operator for the plaintext bot token.
type Prompter interface {
	PromptToken(ctx context.Context) (string, error)
}

// TerminalPrompter reads the token from a terminal with echo disabled.
// When input is not a terminal (e.g. piped in a container) it reads one line instead.
type TerminalPrompter struct {
	in     *os.File
	out    io.Writer
	reader *bufio.Reader
}

// Compile-time check to ensure TerminalPrompter implements Prompter
var _ Prompter = (*TerminalPrompter)(nil)

// NewTerminalPrompter creates a prompter reading from in and writing the prompt to out.
func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:     in,
		out:    out,
		reader: bufio.NewReader(in),
	}
}

// PromptToken blocks until the operator submits a line.
func (p *TerminalPrompter) PromptToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	_, _ = fmt.Fprint(p.out, "Discord Bot Token: ")

	fd := int(p.in.Fd())
	if term.IsTerminal(fd) {
		state, err := term.GetState(fd)
		if err != nil {
			return "", fmt.Errorf("saving terminal state: %w", err)
		}

		// ReadPassword leaves ISIG on: Ctrl-C must restore echo before the process ends
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		line, err := readInterruptible(sigCtx, func() ([]byte, error) {
			return term.ReadPassword(fd)
		}, func() {
			_ = term.Restore(fd, state)
		})
		_, _ = fmt.Fprintln(p.out)
		return line, err
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readInterruptible runs read until it returns or ctx is done. On ctx done,
// restore is called and the pending read is abandoned.
func readInterruptible(ctx context.Context, read func() ([]byte, error), restore func()) (string, error) {
	type result struct {
		line []byte
		err  error
	}

	done := make(chan result, 1)
	go func() {
		line, err := read()
		done <- result{line: line, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("reading token: %w", r.err)
		}
		return string(r.line), nil
	case <-ctx.Done():
		restore()
		return "", fmt.Errorf("token prompt interrupted: %w", ctx.Err())
	}
}
