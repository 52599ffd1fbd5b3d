package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"techpost/internal/engage"
)

// CredentialSource asks the visitor for login details. An empty email means
// the visitor gave up.
type CredentialSource interface {
	Credentials(reason engage.PromptReason) (email, password string, err error)
}

// TerminalPrompter is the login UI of the CLI. PromptLogin prints a notice
// and Credentials reads the answer; passwords are read without echo when
// the input is a terminal.
type TerminalPrompter struct {
	in  *bufio.Reader
	fd  int
	tty bool
	out io.Writer
}

// NewTerminalPrompter reads from in and writes prompts to out.
func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	fd := int(in.Fd())
	return &TerminalPrompter{
		in:  bufio.NewReader(in),
		fd:  fd,
		tty: term.IsTerminal(fd),
		out: out,
	}
}

// PromptLogin implements engage.LoginPrompter.
func (p *TerminalPrompter) PromptLogin(action engage.Action, reason engage.PromptReason) {
	switch reason {
	case engage.PromptSessionExpired:
		fmt.Fprintf(p.out, "Your session has expired. Log in again to %s post %d.\n", verb(action.Kind), action.PostID)
	default:
		fmt.Fprintf(p.out, "Log in to %s post %d.\n", verb(action.Kind), action.PostID)
	}
}

// Credentials implements CredentialSource.
func (p *TerminalPrompter) Credentials(_ engage.PromptReason) (string, string, error) {
	email, err := p.ReadLine("Email (empty to cancel): ")
	if err != nil || email == "" {
		return "", "", err
	}
	password, err := p.ReadPassword("Password: ")
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}

// ReadLine prints label and returns the trimmed line typed after it.
func (p *TerminalPrompter) ReadLine(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// ReadPassword prints label and reads a line without echoing it.
func (p *TerminalPrompter) ReadPassword(label string) (string, error) {
	if !p.tty {
		return p.ReadLine(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

func verb(kind engage.ActionKind) string {
	if kind == engage.ActionComment {
		return "comment on"
	}
	return "like"
}

var (
	_ engage.LoginPrompter = (*TerminalPrompter)(nil)
	_ CredentialSource     = (*TerminalPrompter)(nil)
)
