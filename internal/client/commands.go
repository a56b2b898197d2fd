package client

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/atinyakov/gnoixus/internal/message"
	"github.com/atinyakov/gnoixus/internal/models"
)

// ErrUnknownCommand is returned for a command the shell does not define.
var ErrUnknownCommand = errors.New("unknown command")

// UsageError reports a malformed command line.
type UsageError struct{ Usage string }

func (e *UsageError) Error() string { return "usage: " + e.Usage }

type command struct {
	usage string
	args  int // minimum number of arguments
	build func(args []string) (models.Envelope, error)
}

// ReadFile loads source files for format and lint.
var ReadFile = os.ReadFile

var commands = map[string]command{
	"setup": {"setup <master key>", 1, func(a []string) (models.Envelope, error) {
		return message.Encode(message.PasswordManager, "setup", map[string]string{"masterKey": a[0]})
	}},
	"unlock": {"unlock <master key>", 1, func(a []string) (models.Envelope, error) {
		return message.Encode(message.PasswordManager, "unlock", map[string]string{"masterKey": a[0]})
	}},
	"lock":   {"lock", 0, simple(message.PasswordManager, "lock")},
	"status": {"status", 0, simple(message.PasswordManager, "status")},
	"list":   {"list", 0, simple(message.PasswordManager, "list")},
	"add": {"add <site> <username> <password>", 3, func(a []string) (models.Envelope, error) {
		return message.Encode(message.PasswordManager, "add", map[string]string{
			"site": a[0], "username": a[1], "password": a[2],
		})
	}},
	"get": {"get <site>", 1, func(a []string) (models.Envelope, error) {
		return message.Encode(message.PasswordManager, "get", map[string]string{"site": a[0]})
	}},
	"delete": {"delete <site>", 1, func(a []string) (models.Envelope, error) {
		return message.Encode(message.PasswordManager, "delete", map[string]string{"site": a[0]})
	}},
	"generate": {"generate [length]", 0, func(a []string) (models.Envelope, error) {
		if len(a) == 0 {
			return message.Encode(message.PasswordManager, "generate", nil)
		}
		n, err := strconv.Atoi(a[0])
		if err != nil || n < 0 {
			return models.Envelope{}, &UsageError{Usage: "generate [length]"}
		}
		return message.Encode(message.PasswordManager, "generate", map[string]int{"length": n})
	}},
	"search": {"search <query>", 1, search("repositories")},
	"users":  {"users <query>", 1, search("users")},
	"token": {"token [value]", 0, func(a []string) (models.Envelope, error) {
		return message.Encode(message.GithubSearch, "setToken", map[string]string{"token": strings.Join(a, "")})
	}},
	"clear-cache": {"clear-cache", 0, simple(message.GithubSearch, "clearCache")},
	"intensity": {"intensity <0.5..1>", 1, func(a []string) (models.Envelope, error) {
		v, err := strconv.ParseFloat(a[0], 64)
		if err != nil {
			return models.Envelope{}, &UsageError{Usage: "intensity <0.5..1>"}
		}
		return message.Encode(message.DarkMode, "setIntensity", map[string]float64{"intensity": v})
	}},
	"css":    {"css", 0, simple(message.DarkMode, "stylesheet")},
	"format": {"format <language> <file>", 2, source("format")},
	"lint":   {"lint <language> <file>", 2, source("lint")},
	"toggle": {"toggle <feature> on|off", 2, func(a []string) (models.Envelope, error) {
		var on bool
		switch a[1] {
		case "on":
			on = true
		case "off":
		default:
			return models.Envelope{}, &UsageError{Usage: "toggle <feature> on|off"}
		}
		return message.Encode(message.Shell, "toggleFeature", map[string]any{"featureName": a[0], "enabled": on})
	}},
}

func simple(feature, typ string) func([]string) (models.Envelope, error) {
	return func([]string) (models.Envelope, error) { return message.Encode(feature, typ, nil) }
}

func search(kind string) func([]string) (models.Envelope, error) {
	return func(a []string) (models.Envelope, error) {
		return message.Encode(message.GithubSearch, "search", map[string]string{
			"query": strings.Join(a, " "), "type": kind,
		})
	}
}

func source(typ string) func([]string) (models.Envelope, error) {
	return func(a []string) (models.Envelope, error) {
		code, err := ReadFile(a[1])
		if err != nil {
			return models.Envelope{}, fmt.Errorf("read %s: %w", a[1], err)
		}
		return message.Encode(message.LinterFormatter, typ, map[string]string{
			"code": string(code), "language": a[0],
		})
	}
}

// ParseCommand turns a shell command line into an envelope.
func ParseCommand(line string) (models.Envelope, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return models.Envelope{}, ErrUnknownCommand
	}
	cmd, ok := commands[fields[0]]
	if !ok {
		return models.Envelope{}, fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
	args := fields[1:]
	if len(args) < cmd.args {
		return models.Envelope{}, &UsageError{Usage: cmd.usage}
	}
	return cmd.build(args)
}

// Help lists the usage line of every command.
func Help() string {
	lines := make([]string, 0, len(commands))
	for _, c := range commands {
		lines = append(lines, "  "+c.usage)
	}
	sort.Strings(lines)
	return "Commands:\n" + strings.Join(lines, "\n") + "\n  features\n  help\n  exit"
}
