package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/sitepulse/pkg/feeds"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
)

// errHistoryDisabled is returned by history commands when the workspace has
// no snapshot database.
var errHistoryDisabled = errors.New("history is disabled")

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	switch {
	case errors.Is(err, storage.ErrNotInitialized):
		return NewCLIError("workspace not initialized", "Run 'sitepulse init' in the workspace root", err)
	case errors.Is(err, feeds.ErrJobNotFound):
		return NewCLIError("job not found", "Run 'sitepulse jobs' to list known jobs", err)
	case errors.Is(err, feeds.ErrUnauthorized):
		return NewCLIError("feed API rejected the credentials", "Check the token variable named by api.token_env (default SITEPULSE_API_TOKEN)", err)
	case errors.Is(err, feeds.ErrInvalidBundle):
		return NewCLIError("feed bundle failed validation", "Run 'sitepulse evaluate --schema' to print the expected format", err)
	case errors.Is(err, errHistoryDisabled):
		return NewCLIError("history is disabled", "Set history.enabled: true in .sitepulse/config.yaml", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewCLIError("feed request timed out", "Raise api.timeout in .sitepulse/config.yaml", err)
	}

	return err
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) && cliErr.ExitCode != 0 {
		return cliErr.ExitCode
	}
	return 1
}

// PrintError writes err and, for CLIErrors, its hint.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	var cliErr *CLIError
	if errors.As(err, &cliErr) && cliErr.Hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", cliErr.Hint)
	}
}
