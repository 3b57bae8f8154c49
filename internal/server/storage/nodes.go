package storage

import (
	"context"
	"time"

	"github.com/iudanet/zfswitness/internal/models"
)

// NodeStorage defines interface for node persistence
type NodeStorage interface {
	// CreateNode creates a new node. apiKeyHash is the sha256 hex of the
	// node's API key; the key itself is never stored.
	// Returns ErrNodeAlreadyExists if the hostname is taken.
	CreateNode(ctx context.Context, node *models.Node, apiKeyHash string) error

	// GetNode retrieves node by ID
	// Returns ErrNodeNotFound if node doesn't exist
	GetNode(ctx context.Context, nodeID string) (*models.Node, error)

	// GetNodeByHostname retrieves node by hostname
	GetNodeByHostname(ctx context.Context, hostname string) (*models.Node, error)

	// GetNodeByAPIKeyHash retrieves node by API key hash.
	// Used by the auth middleware on every node request.
	GetNodeByAPIKeyHash(ctx context.Context, hash string) (*models.Node, error)

	// ListNodes retrieves all nodes ordered by hostname
	ListNodes(ctx context.Context) ([]*models.Node, error)

	// UpdateNode updates node attributes (transport fields, status)
	UpdateNode(ctx context.Context, node *models.Node) error

	// RotateAPIKey replaces the node's API key hash
	RotateAPIKey(ctx context.Context, nodeID, newHash string) error

	// UpdateLastSeen updates the last seen timestamp
	UpdateLastSeen(ctx context.Context, nodeID string, lastSeen time.Time) error

	// DeleteNode deletes node by ID (snapshots cascade)
	DeleteNode(ctx context.Context, nodeID string) error
}
