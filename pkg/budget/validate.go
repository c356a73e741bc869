package budget

import (
	"strings"
)

// Validate checks the invariants every persisted budget must hold.
// All failures are reported together; nothing is coerced.
func Validate(b *Budget) error {
	var errs []FieldError

	if strings.TrimSpace(b.OwnerID) == "" {
		errs = append(errs, FieldError{Field: "owner_id", Message: "owner is required"})
	}
	if strings.TrimSpace(b.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "name must not be empty"})
	}
	if !b.Period.Valid() {
		errs = append(errs, FieldError{
			Field:   "period",
			Message: "must be one of daily, weekly, monthly (got " + quote(string(b.Period)) + ")",
		})
	}
	if !b.LimitUSD.IsPositive() {
		errs = append(errs, FieldError{Field: "limit_usd", Message: "must be greater than 0"})
	}
	if b.CurrentSpendUSD.IsNegative() {
		errs = append(errs, FieldError{Field: "current_spend_usd", Message: "must not be negative"})
	}
	if !b.ActionOnBreach.Valid() {
		errs = append(errs, FieldError{
			Field:   "action_on_breach",
			Message: "must be one of alert, block, downgrade (got " + quote(string(b.ActionOnBreach)) + ")",
		})
	}
	errs = append(errs, validateScope(b.Scope)...)

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func validateScope(s Scope) []FieldError {
	if !s.Kind.Valid() {
		return []FieldError{{
			Field:   "scope",
			Message: "must be one of global, agent, model, workflow (got " + quote(string(s.Kind)) + ")",
		}}
	}
	if s.Kind == ScopeGlobal && s.Identifier != "" {
		return []FieldError{{Field: "scope_identifier", Message: "must be null for global scope"}}
	}
	if s.Kind != ScopeGlobal && strings.TrimSpace(s.Identifier) == "" {
		return []FieldError{{Field: "scope_identifier", Message: "required for " + string(s.Kind) + " scope"}}
	}
	return nil
}

func quote(s string) string {
	return `"` + s + `"`
}
