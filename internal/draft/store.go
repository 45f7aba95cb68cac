// Package draft persists in-progress quiz answers so a reload can resume them.
package draft

import (
	"context"

	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/model"
)

// Store is a last-writer-wins key/value store of drafts.
//
// Save never fails from the caller's point of view: errors are logged and the
// live session stays authoritative. Load treats missing and corrupt values
// alike. Clear is idempotent.
type Store interface {
	Save(ctx context.Context, key string, d model.Draft)
	Load(ctx context.Context, key string) (*model.Draft, bool)
	Clear(ctx context.Context, key string) error
}

// Key returns the store key of a (user, quiz) pair.
func Key(userID, quizID string) string {
	return config.CacheKey.DraftKey(userID, quizID)
}
