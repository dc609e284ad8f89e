package registry

import (
	"context"

	"github.com/northlane-labs/social-tracker/internal/models"
)

// Store is the durable persistence boundary for accounts. The Registry
// is the only caller; workers only read through the Registry's
// in-memory index.
type Store interface {
	LoadAll(ctx context.Context) ([]*models.Account, error)
	Upsert(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id string) error
}
