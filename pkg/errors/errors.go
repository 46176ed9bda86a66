package errors

import (
	"errors"
	"fmt"
)

// Error codes attached to structured errors.
const (
	// CodeConfiguration marks failures detected while building a stage.
	CodeConfiguration = "CONFIGURATION_ERROR"

	// CodeTransform marks payload encode/decode failures.
	CodeTransform = "TRANSFORM_ERROR"

	// CodeExpression marks expression compilation or evaluation failures.
	CodeExpression = "EXPRESSION_ERROR"
)

var (
	// ErrInvalidBatchSize indicates that the batch size is not a positive integer
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")

	// ErrTransformerNotFound indicates that no transformer is registered for a data type pair
	ErrTransformerNotFound = errors.New("transformer not found")

	// ErrChainBuild indicates that a processing chain could not be assembled
	ErrChainBuild = errors.New("chain build failed")

	// ErrUnknownLanguage indicates that no evaluator is registered for an expression language
	ErrUnknownLanguage = errors.New("unknown expression language")

	// ErrInvalidExpression indicates that an expression could not be parsed or compiled
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrPayloadNotStructural indicates that a structural query ran against a non-tree payload
	ErrPayloadNotStructural = errors.New("payload is not a structured document")

	// ErrGroupedMapSplit indicates that grouping was requested over a map payload
	ErrGroupedMapSplit = errors.New("grouping is not supported for map entry splitting")

	// ErrNotAMap indicates that a map entry split received a non-map payload
	ErrNotAMap = errors.New("payload is not a map")

	// ErrUnknownStageType indicates that no stage creator is registered for a type
	ErrUnknownStageType = errors.New("unknown stage type")
)

// Error represents a structured error carrying a machine-readable code
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Configuration wraps err as a configuration error
func Configuration(message string, err error) *Error {
	return NewError(CodeConfiguration, message, err)
}

// Transform wraps err as a transform error
func Transform(message string, err error) *Error {
	return NewError(CodeTransform, message, err)
}

// Expression wraps err as an expression error
func Expression(message string, err error) *Error {
	return NewError(CodeExpression, message, err)
}

// HasCode reports whether any error in err's chain is an *Error with the given code
func HasCode(err error, code string) bool {
	var e *Error
	for err != nil {
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

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	return HasCode(err, CodeConfiguration)
}

// IsTransform checks if an error is a transform error
func IsTransform(err error) bool {
	return HasCode(err, CodeTransform)
}

// IsExpression checks if an error is an expression error
func IsExpression(err error) bool {
	return HasCode(err, CodeExpression)
}
