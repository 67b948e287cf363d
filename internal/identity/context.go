// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"

	"github.com/google/uuid"
)

type userIDContextKey struct{}

var ctxUserIDKey userIDContextKey

// WithUserID stores the authenticated user id on the request context.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

// UserIDFromContext reads the authenticated user id from context.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(ctxUserIDKey)
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
