package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/server/storage"
)

// CreateNode creates a new node in the storage
func (s *Storage) CreateNode(ctx context.Context, node *models.Node, apiKeyHash string) error {
	query := `
		INSERT INTO nodes (id, hostname, platform, connectivity_status, api_key_hash,
			transport_hostname, transport_user, transport_port, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		node.ID,
		node.Hostname,
		node.Platform,
		node.ConnectivityStatus,
		apiKeyHash,
		node.TransportHostname,
		node.TransportUser,
		node.TransportPort,
		node.LastSeen,
		node.CreatedAt,
		node.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: nodes.hostname") {
			return storage.ErrNodeAlreadyExists
		}
		return fmt.Errorf("failed to insert node: %w", err)
	}

	return nil
}

const nodeColumns = `id, hostname, platform, connectivity_status,
	transport_hostname, transport_user, transport_port, last_seen, created_at, updated_at`

// scanNode сканирует одну строку nodes в модель
func scanNode(row *sql.Row) (*models.Node, error) {
	node := &models.Node{}
	var lastSeen sql.NullTime

	err := row.Scan(
		&node.ID,
		&node.Hostname,
		&node.Platform,
		&node.ConnectivityStatus,
		&node.TransportHostname,
		&node.TransportUser,
		&node.TransportPort,
		&lastSeen,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNodeNotFound
		}
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	if lastSeen.Valid {
		node.LastSeen = &lastSeen.Time
	}
	return node, nil
}

// GetNode retrieves node by ID
func (s *Storage) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = ?`
	return scanNode(s.db.QueryRowContext(ctx, query, nodeID))
}

// GetNodeByHostname retrieves node by hostname
func (s *Storage) GetNodeByHostname(ctx context.Context, hostname string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE hostname = ?`
	return scanNode(s.db.QueryRowContext(ctx, query, hostname))
}

// GetNodeByAPIKeyHash retrieves node by API key hash
func (s *Storage) GetNodeByAPIKeyHash(ctx context.Context, hash string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE api_key_hash = ?`
	return scanNode(s.db.QueryRowContext(ctx, query, hash))
}

// ListNodes retrieves all nodes ordered by hostname
func (s *Storage) ListNodes(ctx context.Context) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes ORDER BY hostname`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]*models.Node, 0)
	for rows.Next() {
		node := &models.Node{}
		var lastSeen sql.NullTime
		if err := rows.Scan(
			&node.ID,
			&node.Hostname,
			&node.Platform,
			&node.ConnectivityStatus,
			&node.TransportHostname,
			&node.TransportUser,
			&node.TransportPort,
			&lastSeen,
			&node.CreatedAt,
			&node.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if lastSeen.Valid {
			node.LastSeen = &lastSeen.Time
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}

	return nodes, nil
}

// UpdateNode updates node attributes
func (s *Storage) UpdateNode(ctx context.Context, node *models.Node) error {
	query := `
		UPDATE nodes
		SET platform = ?, connectivity_status = ?, transport_hostname = ?,
		    transport_user = ?, transport_port = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		node.Platform,
		node.ConnectivityStatus,
		node.TransportHostname,
		node.TransportUser,
		node.TransportPort,
		time.Now().UTC(),
		node.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update node: %w", err)
	}

	return requireRowsAffected(result, storage.ErrNodeNotFound)
}

// RotateAPIKey replaces the node's API key hash
func (s *Storage) RotateAPIKey(ctx context.Context, nodeID, newHash string) error {
	query := `UPDATE nodes SET api_key_hash = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, newHash, time.Now().UTC(), nodeID)
	if err != nil {
		return fmt.Errorf("failed to rotate api key: %w", err)
	}

	return requireRowsAffected(result, storage.ErrNodeNotFound)
}

// UpdateLastSeen updates the last seen timestamp
func (s *Storage) UpdateLastSeen(ctx context.Context, nodeID string, lastSeen time.Time) error {
	query := `UPDATE nodes SET last_seen = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, lastSeen, nodeID)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	return requireRowsAffected(result, storage.ErrNodeNotFound)
}

// DeleteNode deletes node by ID
func (s *Storage) DeleteNode(ctx context.Context, nodeID string) error {
	query := `DELETE FROM nodes WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	return requireRowsAffected(result, storage.ErrNodeNotFound)
}

// requireRowsAffected возвращает notFound если запрос не затронул ни одной строки
func requireRowsAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
