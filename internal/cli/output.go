package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/config"
	"github.com/roach88/chanwallet/internal/handlers"
	"github.com/roach88/chanwallet/internal/pool"
	"github.com/roach88/chanwallet/internal/store"
	"github.com/roach88/chanwallet/internal/wallet"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The wallet refused the operation (not my turn, bad payload, ...)
	ExitCommandError = 2 // Command error (bad flags, config, database unavailable, ...)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric  = "E000"
	ErrCodeConfig   = "E001"
	ErrCodeStore    = "E002"
	ErrCodeInput    = "E003"
	ErrCodeProtocol = "E004"
	ErrCodePayload  = "E005"
	ErrCodeNotFound = "E006"
	ErrCodeChain    = "E007"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify maps a wallet error to its CLI error code and exit code.
func classify(err error) (string, int) {
	switch {
	case config.IsConfigError(err):
		return ErrCodeConfig, ExitCommandError
	case errors.Is(err, store.ErrChannelNotFound):
		return ErrCodeNotFound, ExitFailure
	case errors.Is(err, pool.ErrPoolClosed):
		return ErrCodeGeneric, ExitCommandError
	case wallet.IsPayloadError(err),
		channel.IsSignatureError(err),
		channel.IsConflictingStateError(err):
		return ErrCodePayload, ExitFailure
	}

	var (
		joinErr    *handlers.JoinChannelError
		updateErr  *handlers.UpdateChannelError
		closeErr   *handlers.CloseChannelError
		approveErr *handlers.ApproveObjectiveError
		nonceErr   *store.NonceError
	)
	switch {
	case errors.As(err, &joinErr),
		errors.As(err, &updateErr),
		errors.As(err, &closeErr),
		errors.As(err, &approveErr),
		errors.As(err, &nonceErr):
		return ErrCodeProtocol, ExitFailure
	}
	return ErrCodeGeneric, ExitFailure
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
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err through the formatter and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(exit, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
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
