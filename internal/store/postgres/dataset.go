package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/YangYuS8/mlsmanager/internal/store"
)

// UpsertDatasets applies a batch of scan reports for a node. Datasets
// are keyed by (node_id, local_path); existing rows get their size,
// file count and format refreshed, new paths are inserted. Returns how
// many rows were registered and how many updated.
func (s *Store) UpsertDatasets(ctx context.Context, nodeID uuid.UUID, datasets []store.Dataset) (int, int, error) {
	if len(datasets) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin dataset upsert: %w", err)
	}
	defer tx.Rollback()

	var registered, updated int
	for _, d := range datasets {
		res, err := tx.ExecContext(ctx, `
			UPDATE datasets SET
				name = $3, size_bytes = $4, file_count = $5, format = $6,
				description = COALESCE($7, description), updated_at = NOW()
			WHERE node_id = $1 AND local_path = $2`,
			nodeID, d.LocalPath, d.Name, d.SizeBytes, d.FileCount, d.Format, d.Description)
		if err != nil {
			return 0, 0, fmt.Errorf("update dataset %s: %w", d.LocalPath, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, err
		}
		if n > 0 {
			updated++
			continue
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO datasets (id, name, node_id, local_path, size_bytes, file_count, format, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), d.Name, nodeID, d.LocalPath, d.SizeBytes, d.FileCount, d.Format, d.Description)
		if err != nil {
			return 0, 0, fmt.Errorf("insert dataset %s: %w", d.LocalPath, err)
		}
		registered++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit dataset upsert: %w", err)
	}
	return registered, updated, nil
}

func (s *Store) ListDatasetsForNode(ctx context.Context, nodeID uuid.UUID) ([]store.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, node_id, local_path, size_bytes, file_count, format, description, created_at, updated_at
		FROM datasets WHERE node_id = $1 ORDER BY local_path ASC`,
		nodeID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []store.Dataset
	for rows.Next() {
		var d store.Dataset
		if err := rows.Scan(&d.ID, &d.Name, &d.NodeID, &d.LocalPath, &d.SizeBytes,
			&d.FileCount, &d.Format, &d.Description, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}
	return datasets, rows.Err()
}
