package tools

import (
	"context"
	"fmt"
	"time"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/pkg/apperr"
)

// Session is the authenticated context one tool call executes in. An
// anonymous session may connect but cannot execute any tool.
type Session struct {
	UserID    string
	Username  string
	DBName    string
	Anonymous bool

	User  *domain.User
	Todos in.TodoService
	Users in.UserService
}

// Tool is one entry of the closed catalog. Execute returns the payload and a
// human summary; the registry wraps both into the response envelope.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ParameterSpec
	Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error)
}

// ParameterSpec declares one validated tool parameter.
type ParameterSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, boolean, array, object
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Error types reported in failure envelopes.
const (
	ErrTypeNotFound   = "not_found"
	ErrTypeDatabase   = "database_error"
	ErrTypeValidation = "validation_error"
	ErrTypeAuth       = "auth_error"
)

// Envelope is the structured JSON every tool call returns, success or not.
type Envelope struct {
	Summary             string         `json:"summary"`
	Data                map[string]any `json:"data,omitempty"`
	Error               string         `json:"error,omitempty"`
	RecoverySuggestions []string       `json:"recovery_suggestions,omitempty"`
	Metadata            map[string]any `json:"metadata"`
}

// IsError reports whether the envelope describes a failure.
func (e *Envelope) IsError() bool { return e.Error != "" }

// successEnvelope builds the success shape of the tool response.
func successEnvelope(operation, summary string, data map[string]any, elapsed time.Duration) *Envelope {
	return &Envelope{
		Summary: summary,
		Data:    data,
		Metadata: map[string]any{
			"operation":      operation,
			"timestamp":      domain.Now(),
			"execution_time": fmt.Sprintf("%dms", elapsed.Milliseconds()),
		},
	}
}

// ErrorEnvelope classifies err and builds the failure shape. The transport
// layer uses it for failures that happen before dispatch reaches a tool.
func ErrorEnvelope(operation string, err error) *Envelope {
	errType, suggestions := classifyError(err)
	return &Envelope{
		Summary:             fmt.Sprintf("%s failed", operation),
		Error:               err.Error(),
		RecoverySuggestions: suggestions,
		Metadata: map[string]any{
			"operation":  operation,
			"timestamp":  domain.Now(),
			"error_type": errType,
		},
	}
}

func classifyError(err error) (string, []string) {
	switch {
	case apperr.IsNotFound(err):
		return ErrTypeNotFound, []string{
			"verify the id is correct",
			"use listTodos to discover existing ids",
		}
	case apperr.IsValidation(err):
		return ErrTypeValidation, []string{
			"check the parameter types and allowed combinations",
		}
	case apperr.IsUnauthorized(err):
		return ErrTypeAuth, []string{
			"authenticate with a valid X-User-ID header",
		}
	default:
		return ErrTypeDatabase, []string{
			"retry the operation",
			"check the server logs if the failure persists",
		}
	}
}

// validateArgs checks required parameters and loose types before dispatch.
// Parameter validation is the only entry boundary for untrusted input.
func validateArgs(specs []ParameterSpec, args map[string]any) error {
	for _, spec := range specs {
		value, present := args[spec.Name]
		if !present || value == nil {
			if spec.Required {
				return apperr.MissingField(spec.Name)
			}
			continue
		}
		switch spec.Type {
		case "string":
			if _, ok := value.(string); !ok {
				return apperr.InvalidInput(spec.Name, "must be a string")
			}
		case "number":
			if _, ok := value.(float64); !ok {
				return apperr.InvalidInput(spec.Name, "must be a number")
			}
		case "boolean":
			if _, ok := value.(bool); !ok {
				return apperr.InvalidInput(spec.Name, "must be a boolean")
			}
		case "array":
			if _, ok := value.([]any); !ok {
				return apperr.InvalidInput(spec.Name, "must be an array")
			}
		case "object":
			if _, ok := value.(map[string]any); !ok {
				return apperr.InvalidInput(spec.Name, "must be an object")
			}
		}
		if len(spec.Enum) > 0 {
			str, _ := value.(string)
			allowed := false
			for _, e := range spec.Enum {
				if str == e {
					allowed = true
					break
				}
			}
			if !allowed {
				return apperr.InvalidInput(spec.Name, fmt.Sprintf("must be one of %v", spec.Enum))
			}
		}
	}
	return nil
}

// --- argument coercion helpers ----------------------------------------------

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func boolArg(args map[string]any, name string) (bool, bool) {
	b, ok := args[name].(bool)
	return b, ok
}

func intArg(args map[string]any, name string) (int, bool) {
	f, ok := args[name].(float64)
	return int(f), ok
}

func stringSliceArg(args map[string]any, name string) []string {
	raw, ok := args[name].([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			values = append(values, s)
		}
	}
	return values
}
