package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents how an error affects the run of a command.
type ErrorClass string

const (
	// ErrorClassFatal indicates a violated engine contract.
	// The run is aborted immediately, no later phase is executed.
	ErrorClassFatal ErrorClass = "fatal"

	// ErrorClassDomain indicates a failed operation (cycle, missing remote dependency,
	// failed install). The current operation stops but the engine still runs the
	// remaining phase groups so the failure can be reported.
	ErrorClassDomain ErrorClass = "domain"

	// ErrorClassRecoverable indicates a condition that was logged and skipped.
	ErrorClassRecoverable ErrorClass = "recoverable"

	// ErrorClassUser indicates bad input from the user (invalid IP definition, missing
	// arguments, missing project file). The run ends early with a non-zero exit code.
	ErrorClassUser ErrorClass = "user"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Phase is the name of the phase during which the error occurred, if known.
	Phase string `json:"phase,omitempty"`

	// IP is the IP or IP definition the error is about, if any.
	IP string `json:"ip,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.IP != "" {
		msg = fmt.Sprintf("%s (ip=%s)", msg, e.IP)
	}
	if e.Phase != "" {
		msg = fmt.Sprintf("%s (phase=%s)", msg, e.Phase)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewFatalError creates a new engine-contract error.
func NewFatalError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassFatal,
		Message: message,
		Err:     err,
	}
}

// NewDomainError creates a new domain error.
func NewDomainError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassDomain,
		Message: message,
		Err:     err,
	}
}

// NewRecoverableError creates a new recoverable error.
func NewRecoverableError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassRecoverable,
		Message: message,
		Err:     err,
	}
}

// NewUserError creates a new user error.
func NewUserError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassUser,
		Message: message,
		Err:     err,
	}
}

// WithPhase adds phase context to an error.
func (e *EngineError) WithPhase(phase string) *EngineError {
	e.Phase = phase
	return e
}

// WithIP adds IP context to an error.
func (e *EngineError) WithIP(ip string) *EngineError {
	e.IP = ip
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsFatal returns true if the error is classified as fatal.
func IsFatal(err error) bool {
	return classOf(err) == ErrorClassFatal
}

// IsDomain returns true if the error is classified as a domain error.
func IsDomain(err error) bool {
	return classOf(err) == ErrorClassDomain
}

// IsRecoverable returns true if the error is classified as recoverable.
func IsRecoverable(err error) bool {
	return classOf(err) == ErrorClassRecoverable
}

// IsUser returns true if the error is classified as a user error.
func IsUser(err error) bool {
	return classOf(err) == ErrorClassUser
}

// HasCode returns true if any EngineError in the chain carries the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		var e *EngineError
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

func classOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// Common error codes.
const (
	ErrCodePhaseNotFinished     = "PHASE_NOT_FINISHED"
	ErrCodeInvalidCommand       = "INVALID_COMMAND"
	ErrCodeInvalidIPDefinition  = "INVALID_IP_DEFINITION"
	ErrCodeDependencyCycle      = "DEPENDENCY_CYCLE"
	ErrCodeResolutionExhausted  = "RESOLUTION_EXHAUSTED"
	ErrCodeRemoteNotFound       = "REMOTE_NOT_FOUND"
	ErrCodeInstallFailed        = "INSTALL_FAILED"
	ErrCodeContradictorySpecs   = "CONTRADICTORY_SPECS"
	ErrCodeMalformedDescriptor  = "MALFORMED_DESCRIPTOR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeAuthentication       = "AUTHENTICATION"
	ErrCodeRemoteCall           = "REMOTE_CALL"
	ErrCodeFilesystem           = "FILESYSTEM"
)
