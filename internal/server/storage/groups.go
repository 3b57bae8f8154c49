package storage

import (
	"context"

	"github.com/iudanet/zfswitness/internal/models"
)

// GroupStorage defines interface for sync group persistence
type GroupStorage interface {
	// CreateGroup creates a new sync group with its memberships.
	// Returns ErrGroupAlreadyExists if the name is taken.
	CreateGroup(ctx context.Context, group *models.SyncGroup) error

	// GetGroup retrieves group by ID with memberships.
	// Returns ErrGroupNotFound if group doesn't exist.
	GetGroup(ctx context.Context, groupID string) (*models.SyncGroup, error)

	// ListGroups retrieves all groups
	ListGroups(ctx context.Context) ([]*models.SyncGroup, error)

	// ListEnabledGroups retrieves enabled groups (scheduler working set)
	ListEnabledGroups(ctx context.Context) ([]*models.SyncGroup, error)

	// ListGroupsForNode retrieves groups the node is a member of
	ListGroupsForNode(ctx context.Context, nodeID string) ([]*models.SyncGroup, error)

	// UpdateGroup replaces group attributes and memberships
	UpdateGroup(ctx context.Context, group *models.SyncGroup) error

	// DeleteGroup deletes group by ID (memberships and states cascade)
	DeleteGroup(ctx context.Context, groupID string) error
}
