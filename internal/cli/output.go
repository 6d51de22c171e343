package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The node refused the operation (policy, auth, state)
	ExitCommandError = 2 // Command error (bad flags, config, missing database)
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

// GetExitCode maps an error returned by a command to a process exit code.
//
// An ExitError anywhere in the chain wins. Otherwise the node error code
// decides: lookup and parse failures are ExitCommandError since the caller
// named something that does not exist, and every other node error (policy,
// authentication, contract state) is ExitFailure.
//
// Returns ExitFailure for errors that carry no code.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch model.CodeOf(err) {
	case model.ErrCodeDbNotFound, model.ErrCodeTableNotFound, model.ErrCodeContractNotFound,
		model.ErrCodeParticipantNotFound, model.ErrCodeParseError, model.ErrCodeDecodeFailure:
		return ExitCommandError
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result.
//
// In JSON mode data is wrapped in a CLIResponse with status "ok". In text
// mode text is printed instead, or data formatted with %v when text is empty.
//
// Parameters:
//   - data: the value encoded in JSON mode
//   - text: the human-readable line for text mode
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if text == "" {
		text = fmt.Sprint(data)
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Table outputs rows under headers. JSON mode encodes data instead.
func (f *OutputFormatter) Table(data any, headers []string, rows [][]string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

// Error outputs err in the configured format.
//
// The CLIError code is the node error code, or "ERROR" for errors that
// carry none. JSON mode writes to Writer and includes the database and table
// as details when the error names them. Text mode writes a single line to
// the error writer.
func (f *OutputFormatter) Error(err error) error {
	code := string(model.CodeOf(err))
	if code == "" {
		code = "ERROR"
	}
	if f.Format == "json" {
		var details any
		var me *model.Error
		if errors.As(err, &me) && (me.Database != "" || me.Table != "") {
			details = map[string]string{"database": me.Database, "table": me.Table}
		}
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: err.Error(), Details: details},
		})
	}
	_, werr := fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, err.Error())
	return werr
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
