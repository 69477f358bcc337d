package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arp-standard/arp-conformance/internal/report"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // No FAIL (and under strict, no WARN/SKIP)
	ExitFailure      = 1 // At least one FAIL (or WARN/SKIP under strict)
	ExitCommandError = 2 // Invalid invocation, detected before any request
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitCommandError if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "junit"}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// renderReports serializes reports in the requested format. Text and
// JSON have single- and multi-report shapes; JUnit always emits one
// testsuites document.
func renderReports(format string, reports []*report.Report) (string, error) {
	switch format {
	case "text":
		if len(reports) == 1 {
			return report.RenderText(reports[0]), nil
		}
		return report.RenderMultiText(reports), nil
	case "json":
		if len(reports) == 1 {
			return report.RenderJSON(reports[0])
		}
		return report.RenderMultiJSON(reports)
	case "junit":
		return report.RenderJUnit(reports)
	default:
		return "", fmt.Errorf("invalid format %q: must be one of %v", format, ValidFormats)
	}
}

// writeOutput prints rendered output to w, or writes it to a file when
// out is non-empty.
func writeOutput(w io.Writer, out, rendered string) error {
	if out == "" {
		fmt.Fprint(w, rendered)
		if !strings.HasSuffix(rendered, "\n") {
			fmt.Fprintln(w)
		}
		return nil
	}
	if err := os.WriteFile(out, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}
