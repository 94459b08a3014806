package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// terminal is the user-facing side of the CLI. It prompts for input and
// receives flow notices and navigation.
type terminal struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm bool
	routes chan string
}

func newTerminal() *terminal {
	fd := int(os.Stdin.Fd())
	return &terminal{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		fd:     fd,
		isTerm: term.IsTerminal(fd),
		routes: make(chan string, 4),
	}
}

// Notify prints a success notice.
func (t *terminal) Notify(message string) {
	fmt.Fprintf(t.out, "✓ %s\n", message)
}

// Navigate reports where a browser client would go next.
func (t *terminal) Navigate(route string) {
	fmt.Fprintf(t.out, "→ %s\n", route)
	select {
	case t.routes <- route:
	default:
	}
}

// Status prints a progress line.
func (t *terminal) Status(s string) {
	if s != "" {
		fmt.Fprintf(t.out, "  %s\n", s)
	}
}

func (t *terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Prompt asks for a single line of input.
func (t *terminal) Prompt(label string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", label)
	line, err := t.readLine()
	return strings.TrimSpace(line), err
}

// PromptDefault asks for input and returns value when it is already set.
func (t *terminal) PromptDefault(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	return t.Prompt(label)
}

// Secret asks for input without echo when stdin is a terminal.
func (t *terminal) Secret(label string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", label)
	if !t.isTerm {
		return t.readLine()
	}
	b, err := term.ReadPassword(t.fd)
	fmt.Fprintln(t.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WaitEnter blocks until the user presses Enter.
func (t *terminal) WaitEnter(label string) error {
	fmt.Fprintf(t.out, "%s [Enter] ", label)
	_, err := t.readLine()
	return err
}

// Confirm asks a yes/no question. An empty answer means yes.
func (t *terminal) Confirm(label string) (bool, error) {
	answer, err := t.Prompt(label + " [Y/n]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
