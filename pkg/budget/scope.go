package budget

import (
	"fmt"
	"strings"
)

// ScopeKind is the dimension a budget applies to.
type ScopeKind string

const (
	ScopeGlobal   ScopeKind = "global"
	ScopeAgent    ScopeKind = "agent"
	ScopeModel    ScopeKind = "model"
	ScopeWorkflow ScopeKind = "workflow"
)

// Valid reports whether k is a known scope kind.
func (k ScopeKind) Valid() bool {
	switch k {
	case ScopeGlobal, ScopeAgent, ScopeModel, ScopeWorkflow:
		return true
	}
	return false
}

// Scope is the tagged variant Global | Agent(id) | Model(id) | Workflow(id).
// Identifier is empty exactly when Kind is ScopeGlobal.
type Scope struct {
	Kind       ScopeKind
	Identifier string
}

// GlobalScope matches every request of the owning account.
func GlobalScope() Scope { return Scope{Kind: ScopeGlobal} }

// AgentScope matches requests issued by the given agent.
func AgentScope(id string) Scope { return Scope{Kind: ScopeAgent, Identifier: id} }

// ModelScope matches requests for the given model.
func ModelScope(id string) Scope { return Scope{Kind: ScopeModel, Identifier: id} }

// WorkflowScope matches requests belonging to the given workflow.
func WorkflowScope(id string) Scope { return Scope{Kind: ScopeWorkflow, Identifier: id} }

// NewScope builds a scope from its persisted pair.
func NewScope(kind ScopeKind, identifier string) Scope {
	return Scope{Kind: kind, Identifier: identifier}
}

// RequestScope carries the attributes of a single request that budgets are
// matched against. Empty fields never match a scoped budget.
type RequestScope struct {
	OwnerID    string `json:"owner_id"`
	AgentID    string `json:"agent_id,omitempty"`
	Model      string `json:"model,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

// Validate reports a missing owner.
func (r RequestScope) Validate() error {
	if r.OwnerID == "" {
		return ErrMissingOwner
	}
	return nil
}

// String renders the request attributes for log output.
func (r RequestScope) String() string {
	return fmt.Sprintf("owner=%s agent=%s model=%s workflow=%s", r.OwnerID, r.AgentID, r.Model, r.WorkflowID)
}

// Matches reports whether a request with the given attributes falls under s.
// Identifiers are compared exactly; there is no prefix or wildcard matching.
func (s Scope) Matches(req RequestScope) bool {
	var attr string
	switch s.Kind {
	case ScopeGlobal:
		return true
	case ScopeAgent:
		attr = req.AgentID
	case ScopeModel:
		attr = req.Model
	case ScopeWorkflow:
		attr = req.WorkflowID
	default:
		return false
	}
	return attr != "" && attr == s.Identifier
}

// String renders the scope as kind or kind:identifier.
func (s Scope) String() string {
	if s.Kind == ScopeGlobal || s.Identifier == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.Identifier)
}

// ParseScope parses kind or kind:identifier, the form String produces.
func ParseScope(s string) (Scope, error) {
	kind, id, _ := strings.Cut(strings.TrimSpace(s), ":")
	k := ScopeKind(strings.ToLower(kind))
	if !k.Valid() {
		return Scope{}, fmt.Errorf("unknown scope kind %q", kind)
	}
	return NewScope(k, id), nil
}

// MarshalText encodes the scope as kind or kind:identifier.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes kind or kind:identifier.
func (s *Scope) UnmarshalText(data []byte) error {
	parsed, err := ParseScope(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ScopeFields is the flat form of a scope carried by budget records:
// "scope" holds the kind and "scope_identifier" the identifier, null for
// global scopes.
type ScopeFields struct {
	Kind       ScopeKind `json:"scope"`
	Identifier *string   `json:"scope_identifier"`
}

// Fields returns the flat form of s.
func (s Scope) Fields() ScopeFields {
	f := ScopeFields{Kind: s.Kind}
	if s.Kind != ScopeGlobal {
		id := s.Identifier
		f.Identifier = &id
	}
	return f
}

// Scope rebuilds the scope from its flat form. A null identifier becomes
// the empty string.
func (f ScopeFields) Scope() Scope {
	var id string
	if f.Identifier != nil {
		id = *f.Identifier
	}
	return NewScope(f.Kind, id)
}
