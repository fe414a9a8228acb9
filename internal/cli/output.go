package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"xdao.co/taskledger/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and failed (upload, ledger, partial read)
	ExitCommandError = 2 // bad flags, unreadable config or files
)

// ExitError carries an exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf(format, args...)}
}

func wrapExit(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode extracts the exit code from err. Errors without one are failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// response is the JSON envelope of every command in --format json.
type response struct {
	Status string          `json:"status"`
	Data   any             `json:"data,omitempty"`
	Error  *model.ErrorRow `json:"error,omitempty"`
	// Warnings lists partial-read failures that did not fail the command.
	Warnings []model.ErrorRow `json:"warnings,omitempty"`
}

type printer struct {
	format string
	out    io.Writer
	errOut io.Writer
}

func (p printer) json() bool { return p.format == "json" }

// result writes data as JSON or calls text to render it.
func (p printer) result(data any, warnings []error, text func(io.Writer) error) error {
	if p.json() {
		r := response{Status: "ok", Data: data}
		for _, w := range warnings {
			r.Warnings = append(r.Warnings, model.ErrorRowFor(w))
		}
		return writeJSON(p.out, r)
	}
	for _, w := range warnings {
		fmt.Fprintf(p.errOut, "warning: %v\n", w)
	}
	if text == nil {
		return nil
	}
	return text(p.out)
}

// failure reports err in the configured format.
func (p printer) failure(err error) {
	if p.json() {
		row := model.ErrorRowFor(err)
		_ = writeJSON(p.out, response{Status: "error", Error: &row})
		return
	}
	fmt.Fprintf(p.errOut, "error: %v\n", err)
	if model.IsOrphaned(err) {
		row := model.ErrorRowFor(err)
		fmt.Fprintf(p.errOut, "note: content %s was stored but is not referenced on the ledger\n", row.CID)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
