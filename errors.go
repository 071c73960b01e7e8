package dsr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Standard sentinel errors for common failures.
var (
	// ErrNoSuchStrategy is returned when a masking or post-processor
	// strategy name is not registered.
	ErrNoSuchStrategy = errors.New("dsr: no such strategy")

	// ErrConflictingLevels is returned when a flattened path map cannot be
	// rebuilt into nested objects because one path is a prefix of another.
	ErrConflictingLevels = errors.New("dsr: conflicting levels")

	// ErrCycle is returned when the dataset references form a cycle.
	ErrCycle = errors.New("dsr: dependency cycle")

	// ErrInvalidConfig is returned for configuration that fails validation.
	ErrInvalidConfig = errors.New("dsr: invalid configuration")

	// ErrClient is returned when an external endpoint call fails.
	ErrClient = errors.New("dsr: client unsuccessful")
)

// NoSuchStrategyError is returned when a strategy name is not registered.
// The error message enumerates the valid names.
type NoSuchStrategyError struct {
	Kind  string // "masking" or "post-processor"
	Name  string
	Valid []string
}

// Error returns the error string.
func (e *NoSuchStrategyError) Error() string {
	return fmt.Sprintf("dsr: %s strategy %q does not exist. Valid strategies are [%s]",
		e.Kind, e.Name, strings.Join(e.Valid, ", "))
}

// Is reports whether the target error matches ErrNoSuchStrategy.
func (e *NoSuchStrategyError) Is(err error) bool {
	return err == ErrNoSuchStrategy
}

// NewNoSuchStrategyError returns a new NoSuchStrategyError.
func NewNoSuchStrategyError(kind, name string, valid []string) *NoSuchStrategyError {
	return &NoSuchStrategyError{Kind: kind, Name: name, Valid: valid}
}

// IsNoSuchStrategy returns true if the error is a NoSuchStrategyError.
func IsNoSuchStrategy(err error) bool {
	if err == nil {
		return false
	}
	var e *NoSuchStrategyError
	return errors.As(err, &e) || errors.Is(err, ErrNoSuchStrategy)
}

// ConflictingLevelsError is returned when both a path and one of its
// prefixes carry values, e.g. "A" and "A.B".
type ConflictingLevelsError struct {
	Path   string
	Prefix string
}

// Error returns the error string.
func (e *ConflictingLevelsError) Error() string {
	return fmt.Sprintf("dsr: error unflattening dictionary, conflicting levels detected: %q conflicts with %q", e.Path, e.Prefix)
}

// Is reports whether the target error matches ErrConflictingLevels.
func (e *ConflictingLevelsError) Is(err error) bool {
	return err == ErrConflictingLevels
}

// ConfigError represents a configuration error, such as a SaaS collection
// missing the request template for an action.
type ConfigError struct {
	Key     string // Connection, dataset or policy key
	Message string
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("dsr: configuration error in %s: %s", e.Key, e.Message)
	}
	return fmt.Sprintf("dsr: configuration error: %s", e.Message)
}

// Is reports whether the target error matches ErrInvalidConfig.
func (e *ConfigError) Is(err error) bool {
	return err == ErrInvalidConfig
}

// NewConfigError returns a new ConfigError.
func NewConfigError(key, format string, args ...any) *ConfigError {
	return &ConfigError{Key: key, Message: fmt.Sprintf(format, args...)}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for a single field of a
// configuration object.
type ValidationError struct {
	Name string // Field path, e.g. "storage[0].details.bucket"
	Err  error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("dsr: validation failed for %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrInvalidConfig.
func (e *ValidationError) Is(err error) bool {
	return err == ErrInvalidConfig
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// Validationf returns a new ValidationError with a formatted message.
func Validationf(name, format string, args ...any) *ValidationError {
	return &ValidationError{Name: name, Err: fmt.Errorf(format, args...)}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// ClientError is returned when a call to an external endpoint fails. The
// status code is 500 when no response was received at all.
type ClientError struct {
	StatusCode int
	URL        string
	Err        error
}

// Error returns the error string.
func (e *ClientError) Error() string {
	msg := fmt.Sprintf("dsr: client call unsuccessful (status %d %s)", e.StatusCode, http.StatusText(e.StatusCode))
	if e.URL != "" {
		msg += " calling " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrClient.
func (e *ClientError) Is(err error) bool {
	return err == ErrClient
}

// Temporary reports whether a retry may succeed.
func (e *ClientError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// NewClientError returns a new ClientError.
func NewClientError(status int, url string, err error) *ClientError {
	return &ClientError{StatusCode: status, URL: url, Err: err}
}

// IsClientError returns true if the error is a ClientError.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	var e *ClientError
	return errors.As(err, &e)
}

// TraversalError is returned when the dataset graph cannot be traversed,
// either because it contains a cycle or because collections are not
// reachable from the identity seed.
type TraversalError struct {
	Message   string
	Addresses []string
	cycle     bool
}

// Error returns the error string.
func (e *TraversalError) Error() string {
	if len(e.Addresses) == 0 {
		return "dsr: traversal: " + e.Message
	}
	return fmt.Sprintf("dsr: traversal: %s: [%s]", e.Message, strings.Join(e.Addresses, ", "))
}

// Is reports whether the target error matches ErrCycle for cycle errors.
func (e *TraversalError) Is(err error) bool {
	return e.cycle && err == ErrCycle
}

// NewCycleError returns a TraversalError for the collections left on a cycle.
func NewCycleError(addresses []string) *TraversalError {
	return &TraversalError{Message: "cycle detected between collections", Addresses: addresses, cycle: true}
}

// NewUnreachableError returns a TraversalError for unreachable collections.
func NewUnreachableError(addresses []string) *TraversalError {
	return &TraversalError{Message: "some collections were not reachable from the identity seed", Addresses: addresses}
}

// IsTraversalError returns true if the error is a TraversalError.
func IsTraversalError(err error) bool {
	if err == nil {
		return false
	}
	var e *TraversalError
	return errors.As(err, &e)
}

// NodeError wraps a failure of a single collection during an access or
// erasure run.
type NodeError struct {
	Address  string // "dataset:collection"
	Op       string // "access" or "erasure"
	Attempts int
	Err      error
}

// Error returns the error string.
func (e *NodeError) Error() string {
	return fmt.Sprintf("dsr: %s %s failed after %d attempt(s): %v", e.Op, e.Address, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// IsNodeError returns true if the error is a NodeError.
func IsNodeError(err error) bool {
	if err == nil {
		return false
	}
	var e *NodeError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "dsr: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("dsr: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
