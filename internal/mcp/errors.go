package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/engramlabs/engram/internal/graph"
	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/tiers"
)

// Error categories. The category is the caller-facing kind of failure; the
// underlying message travels in details.
const (
	CategoryValidation   = "Parameter validation failed"
	CategoryEmbedding    = "Embedding failed"
	CategoryDatabase     = "Database operation failed"
	CategoryConstitutive = "ConstitutiveProtection"
	CategoryPolicy       = "Policy denied"
)

// Machine codes reported in error_type.
const (
	ErrorTypeTimeout = "timeout"
)

// ErrorBody is the structured payload of every failed tool call.
type ErrorBody struct {
	Error     string `json:"error"`
	Details   string `json:"details"`
	Tool      string `json:"tool"`
	Meta      Meta   `json:"metadata"`
	ErrorType string `json:"error_type,omitempty"`
}

// JSON renders the body for the wire. Marshaling a flat struct of strings
// cannot fail; the fallback exists so a broken build never panics here.
func (b *ErrorBody) JSON() string {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Sprintf(`{"error":%q,"tool":%q}`, b.Error, b.Tool)
	}
	return string(data)
}

// Classify maps a handler error onto the structured error body. Validation
// failures keep the offending parameter in details; everything unrecognized
// lands in the database category, which is where the remaining failure
// surface lives.
func Classify(tool, projectID string, err error) *ErrorBody {
	body := &ErrorBody{
		Tool:    tool,
		Details: err.Error(),
		Meta:    Meta{ProjectID: projectID},
	}

	var verr *memory.ValidationError
	var cerr *graph.ConstitutiveProtectionError
	var perr *graph.PolicyDeniedError
	switch {
	case errors.As(err, &verr):
		body.Error = CategoryValidation
	case errors.As(err, &cerr):
		body.Error = CategoryConstitutive
	case errors.As(err, &perr):
		body.Error = CategoryPolicy
	case errors.Is(err, tiers.ErrEmbedding):
		body.Error = CategoryEmbedding
	case errors.Is(err, context.DeadlineExceeded):
		body.Error = CategoryDatabase
		body.ErrorType = ErrorTypeTimeout
	default:
		body.Error = CategoryDatabase
	}
	return body
}
