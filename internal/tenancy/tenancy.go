// Package tenancy carries the request-scoped project identifier through
// tool handlers into the storage boundary. Per DESIGN NOTES §9 ("project
// context"), the identifier is an explicit field threaded through calls —
// never a hidden global or goroutine-local.
package tenancy

import (
	"context"
	"errors"
)

// ctxKey is an unexported type to avoid context key collisions.
type ctxKey struct{}

// ErrNoProject is returned by [FromContext] when no project has been set.
var ErrNoProject = errors.New("tenancy: no project in context")

// WithProject returns a copy of ctx carrying projectID.
func WithProject(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, projectID)
}

// FromContext extracts the project identifier set by [WithProject].
func FromContext(ctx context.Context) (string, error) {
	v, ok := ctx.Value(ctxKey{}).(string)
	if !ok || v == "" {
		return "", ErrNoProject
	}
	return v, nil
}

// AccessLevel classifies a project's read-permission policy.
type AccessLevel string

const (
	AccessSuper    AccessLevel = "super"
	AccessShared   AccessLevel = "shared"
	AccessIsolated AccessLevel = "isolated"
)

// Project is a row of the project registry.
type Project struct {
	ID          string
	DisplayName string
	AccessLevel AccessLevel
}

// ReadPermission records that ReaderProject may read TargetProject's rows.
type ReadPermission struct {
	ReaderProject string
	TargetProject string
}

// ShadowAuditSink records cross-project read leakage detected after
// row-level-security filtering. Implementations must never block or fail
// the caller (spec §4.G "shadow cross-project audit").
type ShadowAuditSink interface {
	RecordLeak(ctx context.Context, requestingProject, foundProject, resourceKind, resourceID string)
}

// NopShadowAudit is a [ShadowAuditSink] that discards everything. Useful
// when shadow-audit mode is disabled.
type NopShadowAudit struct{}

func (NopShadowAudit) RecordLeak(ctx context.Context, requestingProject, foundProject, resourceKind, resourceID string) {
}
