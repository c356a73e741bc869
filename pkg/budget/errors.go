package budget

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidBudget is matched by every *ValidationError.
	ErrInvalidBudget = errors.New("invalid budget")

	// ErrInvalidAmount is returned when a spend amount is negative.
	ErrInvalidAmount = errors.New("invalid spend amount")

	// ErrMissingOwner is returned when a request carries no owner_id.
	ErrMissingOwner = errors.New("owner_id is required")
)

// FieldError is a validation failure on a single budget field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field that failed validation.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "budget validation failed"
	case 1:
		return "budget validation failed: " + e.Errors[0].Error()
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Error())
	}
	return fmt.Sprintf("budget validation failed with %d errors: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrInvalidBudget) match validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidBudget
}

// ItemError records a per-budget failure inside a sweep. Sweeps collect these
// and keep going.
type ItemError struct {
	BudgetID string `json:"budget_id"`
	Message  string `json:"message"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("budget %s: %s", e.BudgetID, e.Message)
}
