package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/atinyakov/gnoixus/internal/models"
)

// Sender delivers one shell command to the host.
type Sender interface {
	Send(ctx context.Context, env models.Envelope) (json.RawMessage, error)
	Features(ctx context.Context) (map[string]bool, error)
}

// Shell runs the interactive loop of the command-line context.
type Shell struct {
	Sender Sender
	Prompt string
}

// Run reads commands from in until EOF or "exit", writing replies to out.
func (s *Shell) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, s.Prompt)
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit":
			fmt.Fprintln(out, "Bye")
			return nil
		case "help":
			fmt.Fprintln(out, Help())
			continue
		case "features":
			s.features(ctx, out)
			continue
		}

		env, err := ParseCommand(line)
		var usage *UsageError
		switch {
		case errors.As(err, &usage):
			fmt.Fprintln(out, usage.Error())
			continue
		case errors.Is(err, ErrUnknownCommand):
			fmt.Fprintln(out, "Unknown command. Type 'help' for a list of commands.")
			continue
		case err != nil:
			fmt.Fprintln(out, err)
			continue
		}

		reply, err := s.Sender.Send(ctx, env)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		fmt.Fprintln(out, pretty(reply))
	}
}

func (s *Shell) features(ctx context.Context, out io.Writer) {
	states, err := s.Sender.Features(ctx)
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		state := "off"
		if states[name] {
			state = "on"
		}
		fmt.Fprintf(out, "%-16s %s\n", name, state)
	}
}

func pretty(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
