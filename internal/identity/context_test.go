// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestUserIDRoundTrip(t *testing.T) {
	userID := uuid.New()
	ctx := WithUserID(context.Background(), userID)

	got, ok := UserIDFromContext(ctx)
	if !ok {
		t.Fatal("expected user id on context")
	}
	if got != userID {
		t.Fatalf("expected %s got %s", userID, got)
	}
}

func TestUserIDMissing(t *testing.T) {
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("expected no user id on empty context")
	}
}

func TestNilUserIDNotResolvable(t *testing.T) {
	ctx := WithUserID(context.Background(), uuid.Nil)
	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatal("expected nil uuid to be treated as absent")
	}
}
