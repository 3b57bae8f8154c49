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

// CreateGroup creates a new sync group with its memberships
func (s *Storage) CreateGroup(ctx context.Context, group *models.SyncGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		INSERT INTO sync_groups (id, name, description, enabled, directional,
			hub_node_id, sync_interval_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		group.ID,
		group.Name,
		group.Description,
		group.Enabled,
		group.Directional,
		nullString(group.HubNodeID),
		group.SyncIntervalSeconds,
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: sync_groups.name") {
			return storage.ErrGroupAlreadyExists
		}
		return fmt.Errorf("failed to insert group: %w", err)
	}

	if err := insertMemberships(ctx, tx, group.ID, group.NodeIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group: %w", err)
	}
	return nil
}

func insertMemberships(ctx context.Context, tx *sql.Tx, groupID string, nodeIDs []string) error {
	query := `INSERT INTO sync_group_nodes (group_id, node_id) VALUES (?, ?)`
	for _, nodeID := range nodeIDs {
		if _, err := tx.ExecContext(ctx, query, groupID, nodeID); err != nil {
			return fmt.Errorf("failed to insert membership %s: %w", nodeID, err)
		}
	}
	return nil
}

const groupColumns = `id, name, description, enabled, directional,
	hub_node_id, sync_interval_seconds, created_at, updated_at`

func (s *Storage) scanGroupRow(ctx context.Context, row *sql.Row) (*models.SyncGroup, error) {
	group := &models.SyncGroup{}
	var hubNodeID sql.NullString

	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&group.Enabled,
		&group.Directional,
		&hubNodeID,
		&group.SyncIntervalSeconds,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to scan group: %w", err)
	}

	if hubNodeID.Valid {
		group.HubNodeID = hubNodeID.String
	}

	if err := s.loadMemberships(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *Storage) loadMemberships(ctx context.Context, group *models.SyncGroup) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id FROM sync_group_nodes WHERE group_id = ? ORDER BY node_id`, group.ID)
	if err != nil {
		return fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	group.NodeIDs = make([]string, 0)
	for rows.Next() {
		var nodeID string
		if err := rows.Scan(&nodeID); err != nil {
			return fmt.Errorf("failed to scan membership: %w", err)
		}
		group.NodeIDs = append(group.NodeIDs, nodeID)
	}
	return rows.Err()
}

// GetGroup retrieves group by ID with memberships
func (s *Storage) GetGroup(ctx context.Context, groupID string) (*models.SyncGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM sync_groups WHERE id = ?`
	return s.scanGroupRow(ctx, s.db.QueryRowContext(ctx, query, groupID))
}

func (s *Storage) queryGroups(ctx context.Context, query string, args ...any) ([]*models.SyncGroup, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	groups := make([]*models.SyncGroup, 0)
	for rows.Next() {
		group := &models.SyncGroup{}
		var hubNodeID sql.NullString
		if err := rows.Scan(
			&group.ID,
			&group.Name,
			&group.Description,
			&group.Enabled,
			&group.Directional,
			&hubNodeID,
			&group.SyncIntervalSeconds,
			&group.CreatedAt,
			&group.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		if hubNodeID.Valid {
			group.HubNodeID = hubNodeID.String
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	for _, group := range groups {
		if err := s.loadMemberships(ctx, group); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// ListGroups retrieves all groups
func (s *Storage) ListGroups(ctx context.Context) ([]*models.SyncGroup, error) {
	return s.queryGroups(ctx, `SELECT `+groupColumns+` FROM sync_groups ORDER BY name`)
}

// ListEnabledGroups retrieves enabled groups
func (s *Storage) ListEnabledGroups(ctx context.Context) ([]*models.SyncGroup, error) {
	return s.queryGroups(ctx, `SELECT `+groupColumns+` FROM sync_groups WHERE enabled = 1 ORDER BY name`)
}

// ListGroupsForNode retrieves groups the node is a member of
func (s *Storage) ListGroupsForNode(ctx context.Context, nodeID string) ([]*models.SyncGroup, error) {
	query := `
		SELECT ` + groupColumns + ` FROM sync_groups
		WHERE id IN (SELECT group_id FROM sync_group_nodes WHERE node_id = ?)
		ORDER BY name
	`
	return s.queryGroups(ctx, query, nodeID)
}

// UpdateGroup replaces group attributes and memberships
func (s *Storage) UpdateGroup(ctx context.Context, group *models.SyncGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		UPDATE sync_groups
		SET description = ?, enabled = ?, directional = ?, hub_node_id = ?,
		    sync_interval_seconds = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := tx.ExecContext(ctx, query,
		group.Description,
		group.Enabled,
		group.Directional,
		nullString(group.HubNodeID),
		group.SyncIntervalSeconds,
		time.Now().UTC(),
		group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if err := requireRowsAffected(result, storage.ErrGroupNotFound); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sync_group_nodes WHERE group_id = ?`, group.ID); err != nil {
		return fmt.Errorf("failed to clear memberships: %w", err)
	}
	if err := insertMemberships(ctx, tx, group.ID, group.NodeIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group update: %w", err)
	}
	return nil
}

// DeleteGroup deletes group by ID
func (s *Storage) DeleteGroup(ctx context.Context, groupID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sync_groups WHERE id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return requireRowsAffected(result, storage.ErrGroupNotFound)
}

// nullString конвертирует пустую строку в NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
