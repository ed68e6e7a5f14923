package common

import (
	"context"

	"github.com/teemow/applytrack/internal/server"
)

// OwnerResolver decides on whose behalf a tool call runs.
//
// Priority order:
//  1. the owner authenticated by the HTTP transport (bearer token)
//  2. Default, the owner the stdio server was started for
//
// Tool arguments never name the owner, so an assistant cannot act for
// another user.
type OwnerResolver struct {
	Default string
}

// Owner returns the owner for ctx, or "" when none is known.
func (r OwnerResolver) Owner(ctx context.Context) string {
	if owner, ok := server.OwnerFromContext(ctx); ok {
		return owner
	}
	return r.Default
}
