package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iudanet/zfswitness/internal/models"
)

// AddSnapshots inserts reported snapshots, skipping already known records
func (s *Storage) AddSnapshots(ctx context.Context, snapshots []*models.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback после commit безвреден

	query := `
		INSERT INTO snapshots (id, node_id, pool, dataset, name, timestamp, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id, pool, dataset, name) DO NOTHING
	`

	for _, snap := range snapshots {
		var size sql.NullInt64
		if snap.Size != nil {
			size = sql.NullInt64{Int64: *snap.Size, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, query,
			snap.ID,
			snap.NodeID,
			snap.Pool,
			snap.Dataset,
			snap.Name,
			snap.Timestamp,
			size,
			snap.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert snapshot %s: %w", snap.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}

	return nil
}

const snapshotColumns = `id, node_id, pool, dataset, name, timestamp, size, created_at`

func (s *Storage) querySnapshots(ctx context.Context, query string, args ...any) ([]*models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*models.Snapshot, 0)
	for rows.Next() {
		snap := &models.Snapshot{}
		var size sql.NullInt64
		if err := rows.Scan(
			&snap.ID,
			&snap.NodeID,
			&snap.Pool,
			&snap.Dataset,
			&snap.Name,
			&snap.Timestamp,
			&size,
			&snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if size.Valid {
			snap.Size = &size.Int64
		}
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return snapshots, nil
}

// ListByNode retrieves all snapshots reported by a node
func (s *Storage) ListByNode(ctx context.Context, nodeID string) ([]*models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE node_id = ? ORDER BY timestamp`
	return s.querySnapshots(ctx, query, nodeID)
}

// ListByNodeDataset retrieves a node's snapshots for a dataset, any pool
func (s *Storage) ListByNodeDataset(ctx context.Context, nodeID, dataset string) ([]*models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE node_id = ? AND dataset = ? ORDER BY timestamp`
	return s.querySnapshots(ctx, query, nodeID, dataset)
}

// ListByPoolDataset retrieves a node's snapshots for an exact pool/dataset
func (s *Storage) ListByPoolDataset(ctx context.Context, pool, dataset, nodeID string) ([]*models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE pool = ? AND dataset = ? AND node_id = ? ORDER BY timestamp`
	return s.querySnapshots(ctx, query, pool, dataset, nodeID)
}

// DeleteByName removes a single snapshot record
func (s *Storage) DeleteByName(ctx context.Context, nodeID, pool, dataset, name string) error {
	query := `DELETE FROM snapshots WHERE node_id = ? AND pool = ? AND dataset = ? AND name = ?`

	if _, err := s.db.ExecContext(ctx, query, nodeID, pool, dataset, name); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// DeleteByNode removes a node's whole inventory
func (s *Storage) DeleteByNode(ctx context.Context, nodeID string) error {
	query := `DELETE FROM snapshots WHERE node_id = ?`

	if _, err := s.db.ExecContext(ctx, query, nodeID); err != nil {
		return fmt.Errorf("failed to delete node snapshots: %w", err)
	}
	return nil
}
