package storage

import (
	"context"

	"github.com/iudanet/zfswitness/internal/models"
)

// SyncStateStorage defines interface for convergence state persistence.
// Записи создаются лениво при первом Upsert и никогда не удаляются ядром.
type SyncStateStorage interface {
	// UpsertSyncState creates or updates the state for (group, dataset, node).
	// last_check is always advanced; last_sync only on transition to in_sync.
	// errorMessage replaces the stored message; pass "" to clear it.
	UpsertSyncState(ctx context.Context, groupID, dataset, nodeID string,
		status models.SyncStatus, errorMessage string) (*models.SyncState, error)

	// GetSyncState retrieves the state for (group, dataset, node).
	// Returns ErrSyncStateNotFound if it was never evaluated.
	GetSyncState(ctx context.Context, groupID, dataset, nodeID string) (*models.SyncState, error)

	// ListByGroup retrieves all states recorded for a group
	ListByGroup(ctx context.Context, groupID string) ([]*models.SyncState, error)
}
