package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryInput         ErrorCategory = "input"
	CategoryRegistry      ErrorCategory = "registry"
	CategoryLedger        ErrorCategory = "ledger"
	CategoryReview        ErrorCategory = "review"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Input errors
	CodeFileNotFound  ErrorCode = "file_not_found"
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeMalformedRow  ErrorCode = "malformed_row"
	CodeNoRows        ErrorCode = "no_rows"

	// Registry errors
	CodeRegistryUnavailable ErrorCode = "registry_unavailable"
	CodeNoDirectory         ErrorCode = "no_directory"

	// Ledger errors
	CodeSnapshotFailed    ErrorCode = "snapshot_failed"
	CodePersistenceFailed ErrorCode = "persistence_failed"

	// Review errors
	CodePendingNotFound ErrorCode = "pending_not_found"
	CodeInvalidDecision ErrorCode = "invalid_decision"
	CodeStateCorrupted  ErrorCode = "state_corrupted"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
	CodeCancelled       ErrorCode = "cancelled"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", msg, e.Suggestion)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// Is matches another ReconcilerError by category and code, so sentinel-style
// comparisons work with errors.Is.
func (e *ReconcilerError) Is(target error) bool {
	t, ok := target.(*ReconcilerError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryInput:
		return 2
	case CategoryRegistry, CategoryLedger:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReview:
		return 5
	case CategoryInternal:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// InputError creates an error about a statement or registry input file
func InputError(code ErrorCode, source string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("input file not found: %s", source)
		suggestion = "check the path and make sure the file exists"
	case CodeInvalidFormat:
		message = fmt.Sprintf("unsupported or unreadable input: %s", source)
		suggestion = "provide an .xlsx or .csv statement exported from the bank"
	case CodeMissingColumn:
		message = fmt.Sprintf("required columns missing in %s", source)
		suggestion = "the statement needs Posting Date, Details and Credit columns"
	case CodeMalformedRow:
		message = fmt.Sprintf("malformed row in %s", source)
		suggestion = "rows need a posting date, a narration and a positive amount"
	case CodeNoRows:
		message = fmt.Sprintf("no credit rows to reconcile in %s", source)
		suggestion = "check that the statement contains incoming (credit) transactions"
	default:
		message = fmt.Sprintf("input error: %s", source)
		suggestion = "check the input file and try again"
	}

	return build(err, CategoryInput, code, message).
		WithSuggestion(suggestion).
		WithContext("source", source)
}

// RegistryError creates a customer-registry related error
func RegistryError(code ErrorCode, registry string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeRegistryUnavailable:
		message = fmt.Sprintf("customer registry unavailable: %s", registry)
		suggestion = "lookups against this registry will miss; verify the registry file or sheet"
	case CodeNoDirectory:
		message = "no customer directory configured"
		suggestion = "configure at least one registry source"
	default:
		message = fmt.Sprintf("registry error: %s", registry)
		suggestion = "check the registry configuration"
	}

	return build(err, CategoryRegistry, code, message).
		WithSuggestion(suggestion).
		WithContext("registry", registry)
}

// LedgerError creates an outcome-ledger persistence error
func LedgerError(code ErrorCode, ledger string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeSnapshotFailed:
		message = fmt.Sprintf("failed to read existing entries from %s", ledger)
		suggestion = "verify the ledger workbook is readable and not locked by another program"
	case CodePersistenceFailed:
		message = fmt.Sprintf("failed to append entries to %s", ledger)
		suggestion = "retry the run; entries already written are skipped as duplicates"
	default:
		message = fmt.Sprintf("ledger error: %s", ledger)
		suggestion = "check the ledger workbook"
	}

	return build(err, CategoryLedger, code, message).
		WithSuggestion(suggestion).
		WithContext("ledger", ledger)
}

// ReviewError creates a review-workflow error
func ReviewError(code ErrorCode, runID string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodePendingNotFound:
		message = fmt.Sprintf("no pending review found for run %s", runID)
		suggestion = "list pending runs with 'reconciler pending'"
	case CodeInvalidDecision:
		message = fmt.Sprintf("invalid review decision for run %s", runID)
		suggestion = "decisions must reference indexes shown in the review queue"
	case CodeStateCorrupted:
		message = fmt.Sprintf("pending state for run %s could not be decoded", runID)
		suggestion = "discard the run and reprocess the statement"
	default:
		message = fmt.Sprintf("review error for run %s", runID)
		suggestion = "check the run id and try again"
	}

	return build(err, CategoryReview, code, message).
		WithSuggestion(suggestion).
		WithContext("run_id", runID)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting as a flag, in the config file or via RECONCILER_ env"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(err, CategoryConfiguration, code, message).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeCancelled:
		message = fmt.Sprintf("%s cancelled", operation)
		suggestion = "nothing was written; rerun when ready"
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	return build(err, CategoryInternal, code, message).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total      int                   `json:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category"`
	ByCode     map[ErrorCode]int     `json:"by_code"`
	Errors     []*ReconcilerError    `json:"errors"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}
	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}
	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// HasCode reports whether err carries a ReconcilerError with the given code
func HasCode(err error, code ErrorCode) bool {
	if re, ok := AsReconcilerError(err); ok {
		return re.Code == code
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return Wrap(err, category, code, message)
}
