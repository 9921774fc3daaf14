// Package project carries the tenant identity for a request.
//
// Every stored row is scoped to a project. Handlers resolve the project once
// per call (explicit parameter first, then the configured default) and thread
// it through context.Context; the storage layer refuses to run without it.
// This keeps tenancy explicit instead of hiding it in package globals.
package project

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// DefaultID is the project used when the caller supplies nothing and no
// default is configured.
const DefaultID = "default"

// ErrMissing is returned by FromContext when no project was attached.
var ErrMissing = errors.New("project: no project in context")

// idPattern restricts project identifiers to slug form. Identifiers appear in
// composite keys, audit rows, and resource URIs, so they stay conservative.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

type ctxKey struct{}

// WithProject returns a context carrying the given project identifier.
func WithProject(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the project identifier attached by WithProject.
func FromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ctxKey{}).(string)
	if !ok || id == "" {
		return "", ErrMissing
	}
	return id, nil
}

// MustFromContext is FromContext for paths where the dispatcher has already
// attached a project; it panics on programmer error rather than corrupting
// tenancy silently.
func MustFromContext(ctx context.Context) string {
	id, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return id
}

// Resolve picks the effective project for a request: the explicit value when
// supplied, otherwise the configured default, otherwise DefaultID.
// The chosen identifier is validated before use.
func Resolve(explicit, configured string) (string, error) {
	id := explicit
	if id == "" {
		id = configured
	}
	if id == "" {
		id = DefaultID
	}
	if err := Validate(id); err != nil {
		return "", err
	}
	return id, nil
}

// Validate rejects identifiers that could not serve as a composite-key
// component.
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("project id is empty")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("project id %q is not a valid slug (lowercase letters, digits, - and _)", id)
	}
	return nil
}

// AccessLevel describes how widely a project's rows may be read.
type AccessLevel string

const (
	AccessSuper    AccessLevel = "super"    // reads every project
	AccessShared   AccessLevel = "shared"   // reads projects that granted permission
	AccessIsolated AccessLevel = "isolated" // reads only itself
)

// ValidAccessLevels lists the accepted registry values.
func ValidAccessLevels() []AccessLevel {
	return []AccessLevel{AccessSuper, AccessShared, AccessIsolated}
}

// IsValid reports whether the level is one of the registry values.
func (a AccessLevel) IsValid() bool {
	switch a {
	case AccessSuper, AccessShared, AccessIsolated:
		return true
	}
	return false
}
