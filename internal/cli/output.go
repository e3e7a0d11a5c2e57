package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"

	platformerrors "eduverse-client-go/internal/platform/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // operation failed (saga phase, ledger, backend)
	ExitCommandError = 2 // bad flags, config or local storage
	ExitAuth         = 3 // not signed in or the session could not be renewed
	ExitWallet       = 4 // no agent, rejected or pending approval
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
// Errors without an explicit code are mapped from their kind.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	switch platformerrors.KindOf(err) {
	case platformerrors.KindConfig, platformerrors.KindStorage, platformerrors.KindBootstrap:
		return ExitCommandError
	case platformerrors.KindAuthExpired, platformerrors.KindRefreshFailed:
		return ExitAuth
	case platformerrors.KindWalletUnavailable, platformerrors.KindWalletRejected,
		platformerrors.KindWalletRequestPending, platformerrors.KindWalletConnectionFailed:
		return ExitWallet
	default:
		return ExitFailure
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
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

// Success outputs data. In text mode text is printed instead when non-empty.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	if text == "" {
		text = fmt.Sprint(data)
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Error outputs err with its kind as the error code.
func (f *OutputFormatter) Error(err error, details any) error {
	code := string(platformerrors.KindOf(err))
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: err.Error(),
				Details: details,
			},
		})
	}
	fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, err)
	if details != nil {
		fmt.Fprintf(f.GetErrWriter(), "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encode(v any) error {
	raw, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.Writer, string(raw))
	return err
}
