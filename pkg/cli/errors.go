package cli

import (
	"errors"
	"fmt"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/decision"
	"mercator-hq/lucid/pkg/responsibility"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitInvalid   = 2 // invalid input or configuration
	ExitBlocked   = 3 // a decision was blocked and --fail-on-block was set
	ExitIntegrity = 4 // an audit record failed verification
)

// ErrBlocked reports that at least one evaluated decision was blocked.
var ErrBlocked = errors.New("decision blocked by governance")

// ConfigError represents an error in configuration or flags.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		configErr        *ConfigError
		validationErr    *decision.ValidationError
		configurationErr *responsibility.ConfigurationError
		integrityErr     *audit.IntegrityError
	)
	switch {
	case errors.Is(err, ErrBlocked):
		return ExitBlocked
	case errors.As(err, &integrityErr):
		return ExitIntegrity
	case errors.As(err, &configErr), errors.As(err, &validationErr), errors.As(err, &configurationErr):
		return ExitInvalid
	default:
		return ExitFailure
	}
}
