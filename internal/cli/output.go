package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/quaketools/evcat/internal/catalog"
)

// Exit codes.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // operation failure (rejected events, command sweep failures)
	ExitCommandError = 2 // usage or environment error (bad expression, missing catalog)
)

// ExitError carries a specific process exit code out of a command.
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

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Unclassified errors map to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Formatter renders command results as human text or JSON.
type Formatter struct {
	Format string // "text" | "json"
	Writer io.Writer
}

// response is the JSON envelope for command output.
type response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  *cliError `json:"error,omitempty"`
}

type cliError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success renders a result. In text mode the data's natural string form is
// printed; in JSON mode it is wrapped in the status envelope.
func (f *Formatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Fail renders an error, using the catalog error code when there is one.
func (f *Formatter) Fail(err error) error {
	code := "ERROR"
	var cerr *catalog.Error
	if errors.As(err, &cerr) {
		code = string(cerr.Code)
	}
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(response{
			Status: "error",
			Error:  &cliError{Code: code, Message: err.Error()},
		})
	}
	_, werr := fmt.Fprintf(f.Writer, "error [%s]: %s\n", code, err.Error())
	return werr
}
