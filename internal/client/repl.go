package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
)

const exitCommand = "exit"

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F87"}

	promptStyle = lipgloss.NewStyle().Foreground(highlight).Bold(true)
	replyStyle  = lipgloss.NewStyle().Foreground(special).PaddingLeft(2)
	errorStyle  = lipgloss.NewStyle().Foreground(warning).Bold(true)
)

// Sender sends one command and returns the reply.
type Sender interface {
	Send(line string) (string, error)
}

// Run reads commands from in until EOF, "exit" or ctx cancellation and prints every reply.
func Run(ctx context.Context, s Sender, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return nil
		}

		fmt.Fprint(out, promptStyle.Render("wallet> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return errors.Wrap(scanner.Err(), "read input")
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == exitCommand {
			return nil
		}

		reply, err := s.Send(line)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("connection lost: "+err.Error()))
			return err
		}
		fmt.Fprintln(out, replyStyle.Render(reply))
	}
}
