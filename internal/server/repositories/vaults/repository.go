// Package vaults declares the repository contract for entry containers.
package vaults

import (
	"context"

	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

// DefaultName is the name of the container every account starts with.
const DefaultName = "Default"

type Repository interface {
	// Create inserts a vault and fills in its id.
	Create(ctx context.Context, v *models.Vault) error
	ListByUser(ctx context.Context, userID string) ([]models.Vault, error)
}
