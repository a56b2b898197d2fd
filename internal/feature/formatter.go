package feature

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"go/format"
	"go/scanner"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/kv"
	"github.com/atinyakov/gnoixus/internal/message"
	"github.com/atinyakov/gnoixus/internal/models"
)

const (
	severityError   = "error"
	severityWarning = "warning"
)

var (
	jsAssign   = regexp.MustCompile(`([^=!<>])=([^=])`)
	jsFunction = regexp.MustCompile(`function\s*\(`)

	cssRules = strings.NewReplacer("{", " {\n  ", "}", "\n}\n", ";", ";\n  ")
)

// Formatter formats and lints code snippets selected on a page.
type Formatter struct {
	toggle
	store kv.Store
	log   *zap.Logger
}

func NewFormatter(store kv.Store, log *zap.Logger) *Formatter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Formatter{
		toggle: toggle{on: true},
		store:  store,
		log:    log.With(zap.String("feature", message.LinterFormatter)),
	}
}

func (f *Formatter) Name() string { return message.LinterFormatter }

func (f *Formatter) Init(ctx context.Context) error {
	enabled, err := LoadState(ctx, f.store, f.Name())
	if err != nil {
		return err
	}
	f.set(enabled)
	return nil
}

func (f *Formatter) SetEnabled(_ context.Context, enabled bool) { f.set(enabled) }

func (f *Formatter) Cleanup() {}

// Handle runs the job off the caller's goroutine so a cancelled request
// returns immediately.
func (f *Formatter) Handle(ctx context.Context, req message.Request) any {
	var job func() models.FormatResponse
	switch r := req.(type) {
	case message.Format:
		job = func() models.FormatResponse { return FormatCode(r.Code, r.Language) }
	case message.Lint:
		job = func() models.FormatResponse { return LintCode(r.Code, r.Language) }
	default:
		return models.Fail(message.ErrUnknownAction.Error())
	}

	done := make(chan models.FormatResponse, 1)
	go func() { done <- job() }()

	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		f.log.Warn("format job abandoned", zap.Error(ctx.Err()))
		return models.FormatResponse{Status: models.Fail("Processing cancelled")}
	}
}

// FormatCode reformats code according to language. Unknown languages are
// returned unchanged.
func FormatCode(code, language string) models.FormatResponse {
	switch strings.ToLower(language) {
	case "javascript", "typescript":
		return formatted(formatJavaScript(code))
	case "json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(strings.TrimSpace(code)), "", "  "); err != nil {
			return failed("Invalid JSON", []models.LintIssue{{Message: "Invalid JSON", Severity: severityError}})
		}
		return formatted(buf.String())
	case "css":
		return formatted(cssRules.Replace(code))
	case "go":
		out, err := format.Source([]byte(code))
		if err != nil {
			return failed("Invalid Go source", goIssues(err))
		}
		return formatted(string(out))
	default:
		return formatted(code)
	}
}

func formatJavaScript(code string) string {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	code = jsAssign.ReplaceAllString(code, "${1} = ${2}")
	return jsFunction.ReplaceAllString(code, "function (")
}

// LintCode reports console.log calls as warnings and debugger statements as
// errors. Lines are 1-based, columns 0-based.
func LintCode(code, _ string) models.FormatResponse {
	var issues []models.LintIssue
	for i, line := range strings.Split(code, "\n") {
		if col := strings.Index(line, "console.log"); col >= 0 {
			issues = append(issues, models.LintIssue{
				Line:     i + 1,
				Column:   col,
				Message:  "Unexpected console statement",
				Severity: severityWarning,
			})
		}
		if col := strings.Index(line, "debugger"); col >= 0 {
			issues = append(issues, models.LintIssue{
				Line:     i + 1,
				Column:   col,
				Message:  "Debugger statement found",
				Severity: severityError,
			})
		}
	}
	return models.FormatResponse{Status: models.OK(), Errors: issues}
}

func goIssues(err error) []models.LintIssue {
	var list scanner.ErrorList
	if !errors.As(err, &list) {
		return []models.LintIssue{{Message: err.Error(), Severity: severityError}}
	}
	issues := make([]models.LintIssue, 0, len(list))
	for _, e := range list {
		issues = append(issues, models.LintIssue{
			Line:     e.Pos.Line,
			Column:   e.Pos.Column,
			Message:  e.Msg,
			Severity: severityError,
		})
	}
	return issues
}

func formatted(code string) models.FormatResponse {
	return models.FormatResponse{Status: models.OK(), Formatted: code}
}

func failed(msg string, issues []models.LintIssue) models.FormatResponse {
	return models.FormatResponse{Status: models.Fail(msg), Errors: issues}
}
