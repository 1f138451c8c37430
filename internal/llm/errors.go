package llm

import (
	"errors"
	"fmt"
)

// LLMError represents an error from a generation backend.
type LLMError struct {
	// Type categorizes the error
	Type string

	// Provider names the backend that failed (openrouter, anthropic, gemini, genkit)
	Provider string

	// Message is a human-readable error message
	Message string

	// Code is the HTTP status code (if applicable)
	Code int

	// Err is the underlying error
	Err error
}

// Error types.
const (
	ErrorTypeNetwork    = "network"
	ErrorTypeAPI        = "api"
	ErrorTypeValidation = "validation"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeParse      = "parse"
	ErrorTypeContract   = "contract"
)

// Error implements the error interface.
func (e *LLMError) Error() string {
	prefix := "LLM"
	if e.Provider != "" {
		prefix = "LLM " + e.Provider
	}
	if e.Code > 0 {
		return fmt.Sprintf("%s %s error (code %d): %s", prefix, e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", prefix, e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error {
	return e.Err
}

// Retryable reports whether feeding the error back into the prompt can help.
// Transport and API failures are not retried with a modified prompt.
func (e *LLMError) Retryable() bool {
	switch e.Type {
	case ErrorTypeParse, ErrorTypeValidation, ErrorTypeContract:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is an LLMError worth retrying with feedback.
// Errors that are not LLMErrors are treated as transport failures.
func IsRetryable(err error) bool {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Retryable()
	}
	return false
}

// NewNetworkError creates a network error.
func NewNetworkError(provider string, err error) *LLMError {
	return &LLMError{
		Type:     ErrorTypeNetwork,
		Provider: provider,
		Message:  "Failed to reach the generation service. Check your network connection.",
		Err:      err,
	}
}

// NewAPIError creates an API error with status code.
func NewAPIError(provider string, code int, message string) *LLMError {
	return &LLMError{
		Type:     ErrorTypeAPI,
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string, err error) *LLMError {
	return &LLMError{
		Type:    ErrorTypeValidation,
		Message: fmt.Sprintf("Validation failed: %s", message),
		Err:     err,
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(provider string, err error) *LLMError {
	return &LLMError{
		Type:     ErrorTypeTimeout,
		Provider: provider,
		Message:  "Request timed out. The model may be under heavy load.",
		Err:      err,
	}
}

// NewParseError creates a parse error.
func NewParseError(content string, err error) *LLMError {
	return &LLMError{
		Type:    ErrorTypeParse,
		Message: fmt.Sprintf("Failed to parse model output: %s", truncate(content, 200)),
		Err:     err,
	}
}

// NewContractError creates an error for output that does not satisfy a contract.
func NewContractError(contract string, err error) *LLMError {
	return &LLMError{
		Type:    ErrorTypeContract,
		Message: fmt.Sprintf("Output does not satisfy contract %q: %v", contract, err),
		Err:     err,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
