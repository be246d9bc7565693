package tenant

import (
	"context"

	"github.com/andino-labs/andino/internal/audit"
)

type handlerOptions struct {
	audit audit.Logger
}

// HandlerOption customizes a tenant handler.
type HandlerOption func(*handlerOptions)

// WithAuditLogger routes mutation events to the audit trail.
func WithAuditLogger(l audit.Logger) HandlerOption {
	return func(o *handlerOptions) {
		o.audit = l
	}
}

func buildHandlerOptions(opts []HandlerOption) handlerOptions {
	o := handlerOptions{audit: audit.NopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// logChange records a successful mutation attributed to the principal
// on the context.
func logChange(ctx context.Context, l audit.Logger, action, resourceType string, resourceID int64, meta map[string]any) {
	e := audit.EventFor(ctx, action)
	e.ResourceType = resourceType
	e.ResourceID = &resourceID
	e.Metadata = meta
	l.Log(ctx, e)
}
