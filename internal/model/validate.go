package model

import (
	"fmt"
	"strings"
)

// MaxBodyLength is the longest comment body accepted, in runes.
const MaxBodyLength = 10000

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateNewComment checks the input for a new comment.
// It returns a *ValidationError if any rules fail, or nil if the input is valid.
func ValidateNewComment(nc *NewComment) error {
	var ve ValidationError

	body := strings.TrimSpace(nc.Body)
	if body == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "body", Message: "is required"})
	} else if n := len([]rune(nc.Body)); n > MaxBodyLength {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "body",
			Message: fmt.Sprintf("must be %d characters or fewer, got %d", MaxBodyLength, n),
		})
	}

	if strings.TrimSpace(nc.AuthorID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "author_id", Message: "is required"})
	}

	if nc.ParentID != nil && strings.TrimSpace(*nc.ParentID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "parent_id", Message: "must not be empty when set"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
