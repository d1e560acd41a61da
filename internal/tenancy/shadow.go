package tenancy

import (
	"context"
	"log/slog"
)

// SlogShadowAudit is the default [ShadowAuditSink]: it logs cross-project
// leakage as a slog warning whose message starts with "shadow_audit:". This resolves the
// Open Question in DESIGN NOTES §9 ("the shadow-audit channel's concrete
// sink is configuration-dependent"); failures of the underlying logger
// cannot propagate since slog.Logger.Warn never returns an error.
type SlogShadowAudit struct {
	Logger *slog.Logger
}

// NewSlogShadowAudit returns a [SlogShadowAudit] using logger, or the
// default slog logger if logger is nil.
func NewSlogShadowAudit(logger *slog.Logger) *SlogShadowAudit {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogShadowAudit{Logger: logger}
}

func (s *SlogShadowAudit) RecordLeak(ctx context.Context, requestingProject, foundProject, resourceKind, resourceID string) {
	s.Logger.WarnContext(ctx, "shadow_audit: cross-project read detected",
		"requesting_project", requestingProject,
		"found_project", foundProject,
		"resource_kind", resourceKind,
		"resource_id", resourceID,
	)
}
