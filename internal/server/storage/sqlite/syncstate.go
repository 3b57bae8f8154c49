package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/server/storage"
)

// UpsertSyncState creates or updates the state for (group, dataset, node)
func (s *Storage) UpsertSyncState(ctx context.Context, groupID, dataset, nodeID string,
	status models.SyncStatus, errorMessage string,
) (*models.SyncState, error) {
	now := time.Now().UTC()

	var lastSync any
	if status == models.SyncStatusInSync {
		lastSync = now
	}

	query := `
		INSERT INTO sync_states (id, group_id, dataset, node_id, status,
			last_sync, last_check, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id, dataset, node_id) DO UPDATE SET
			status = excluded.status,
			last_check = excluded.last_check,
			last_sync = COALESCE(excluded.last_sync, sync_states.last_sync),
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(),
		groupID,
		dataset,
		nodeID,
		string(status),
		lastSync,
		now,
		errorMessage,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert sync state: %w", err)
	}

	return s.GetSyncState(ctx, groupID, dataset, nodeID)
}

const syncStateColumns = `id, group_id, dataset, node_id, status,
	last_sync, last_check, error_message, created_at, updated_at`

// GetSyncState retrieves the state for (group, dataset, node)
func (s *Storage) GetSyncState(ctx context.Context, groupID, dataset, nodeID string) (*models.SyncState, error) {
	query := `SELECT ` + syncStateColumns + ` FROM sync_states
		WHERE group_id = ? AND dataset = ? AND node_id = ?`

	state := &models.SyncState{}
	var lastSync, lastCheck sql.NullTime
	var status string

	err := s.db.QueryRowContext(ctx, query, groupID, dataset, nodeID).Scan(
		&state.ID,
		&state.GroupID,
		&state.Dataset,
		&state.NodeID,
		&status,
		&lastSync,
		&lastCheck,
		&state.ErrorMessage,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSyncStateNotFound
		}
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	state.Status = models.SyncStatus(status)
	if lastSync.Valid {
		state.LastSync = &lastSync.Time
	}
	if lastCheck.Valid {
		state.LastCheck = &lastCheck.Time
	}
	return state, nil
}

// ListByGroup retrieves all states recorded for a group
func (s *Storage) ListByGroup(ctx context.Context, groupID string) ([]*models.SyncState, error) {
	query := `SELECT ` + syncStateColumns + ` FROM sync_states
		WHERE group_id = ? ORDER BY dataset, node_id`

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer rows.Close()

	states := make([]*models.SyncState, 0)
	for rows.Next() {
		state := &models.SyncState{}
		var lastSync, lastCheck sql.NullTime
		var status string
		if err := rows.Scan(
			&state.ID,
			&state.GroupID,
			&state.Dataset,
			&state.NodeID,
			&status,
			&lastSync,
			&lastCheck,
			&state.ErrorMessage,
			&state.CreatedAt,
			&state.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		state.Status = models.SyncStatus(status)
		if lastSync.Valid {
			state.LastSync = &lastSync.Time
		}
		if lastCheck.Valid {
			state.LastCheck = &lastCheck.Time
		}
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync states: %w", err)
	}
	return states, nil
}
