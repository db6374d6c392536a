package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/YangYuS8/mlsmanager/internal/store"
)

const nodeColumns = `id, node_id, name, host, port, status, is_active,
	cpu_count, memory_total_gb, gpu_count, gpu_info,
	storage_path, storage_total_gb, storage_used_gb,
	last_heartbeat, created_at, updated_at`

func scanNode(row interface {
	Scan(dest ...interface{}) error
}) (*store.Node, error) {
	var n store.Node
	var status string
	err := row.Scan(
		&n.ID, &n.NodeID, &n.Name, &n.Host, &n.Port, &status, &n.IsActive,
		&n.CPUCount, &n.MemoryTotalGB, &n.GPUCount, &n.GPUInfo,
		&n.StoragePath, &n.StorageTotalGB, &n.StorageUsedGB,
		&n.LastHeartbeat, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Status = store.NodeStatus(status)
	return &n, nil
}

// RegisterNode upserts a node by its stable node_id. Capacity fields the
// caller did not provide keep their stored values.
func (s *Store) RegisterNode(ctx context.Context, n *store.Node) (*store.Node, error) {
	query := `
		INSERT INTO nodes (id, node_id, name, host, port, status, is_active,
			cpu_count, memory_total_gb, gpu_count, gpu_info,
			storage_path, storage_total_gb, storage_used_gb,
			last_heartbeat, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'online', TRUE,
			$6, $7, $8, $9, $10, $11, $12, NOW(), NOW(), NOW())
		ON CONFLICT (node_id) DO UPDATE SET
			name = EXCLUDED.name,
			host = EXCLUDED.host,
			port = EXCLUDED.port,
			status = 'online',
			cpu_count = COALESCE(EXCLUDED.cpu_count, nodes.cpu_count),
			memory_total_gb = COALESCE(EXCLUDED.memory_total_gb, nodes.memory_total_gb),
			gpu_count = COALESCE(EXCLUDED.gpu_count, nodes.gpu_count),
			gpu_info = COALESCE(EXCLUDED.gpu_info, nodes.gpu_info),
			storage_path = COALESCE(EXCLUDED.storage_path, nodes.storage_path),
			storage_total_gb = COALESCE(EXCLUDED.storage_total_gb, nodes.storage_total_gb),
			storage_used_gb = COALESCE(EXCLUDED.storage_used_gb, nodes.storage_used_gb),
			last_heartbeat = NOW(),
			updated_at = NOW()
		RETURNING ` + nodeColumns

	row := s.db.QueryRowContext(ctx, query,
		uuid.New(), n.NodeID, n.Name, n.Host, n.Port,
		n.CPUCount, n.MemoryTotalGB, n.GPUCount, n.GPUInfo,
		n.StoragePath, n.StorageTotalGB, n.StorageUsedGB,
	)

	registered, err := scanNode(row)
	if err != nil {
		return nil, fmt.Errorf("register node %s: %w", n.NodeID, err)
	}
	return registered, nil
}

func (s *Store) GetNodeByNodeID(ctx context.Context, nodeID string) (*store.Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE node_id = $1`, nodeID)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return n, err
}

func (s *Store) ListNodes(ctx context.Context, offset, limit int) ([]store.Node, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes ORDER BY created_at ASC OFFSET $1 LIMIT $2`,
		offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// UpdateNode applies an admin patch field-by-field.
func (s *Store) UpdateNode(ctx context.Context, nodeID string, patch store.NodePatch) (*store.Node, error) {
	var status *string
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}

	query := `
		UPDATE nodes SET
			name = COALESCE($2, name),
			status = COALESCE($3, status),
			is_active = COALESCE($4, is_active),
			updated_at = NOW()
		WHERE node_id = $1
		RETURNING ` + nodeColumns

	row := s.db.QueryRowContext(ctx, query, nodeID, patch.Name, status, patch.IsActive)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return n, err
}

// Heartbeat refreshes last_heartbeat and applies the partial capacity
// snapshot. Omitted fields keep their stored values.
func (s *Store) Heartbeat(ctx context.Context, nodeID string, patch store.HeartbeatPatch) (*store.Node, error) {
	query := `
		UPDATE nodes SET
			status = $2,
			cpu_count = COALESCE($3, cpu_count),
			memory_total_gb = COALESCE($4, memory_total_gb),
			gpu_count = COALESCE($5, gpu_count),
			gpu_info = COALESCE($6, gpu_info),
			storage_total_gb = COALESCE($7, storage_total_gb),
			storage_used_gb = COALESCE($8, storage_used_gb),
			last_heartbeat = NOW(),
			updated_at = NOW()
		WHERE node_id = $1
		RETURNING ` + nodeColumns

	row := s.db.QueryRowContext(ctx, query,
		nodeID, string(patch.Status),
		patch.CPUCount, patch.MemoryTotalGB, patch.GPUCount, patch.GPUInfo,
		patch.StorageTotalGB, patch.StorageUsedGB,
	)

	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return n, err
}

func (s *Store) ListSchedulableNodes(ctx context.Context) ([]store.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE is_active AND status = 'online' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list schedulable nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

func (s *Store) StaleOnlineNodeIDs(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id FROM nodes WHERE status = 'online' AND is_active AND last_heartbeat < $1`,
		before)
	if err != nil {
		return nil, fmt.Errorf("query stale nodes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) MarkNodesOffline(ctx context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET status = 'offline', updated_at = NOW() WHERE node_id = ANY($1)`,
		pq.Array(nodeIDs))
	if err != nil {
		return fmt.Errorf("mark nodes offline: %w", err)
	}
	return nil
}

func (s *Store) NodeStats(ctx context.Context) (*store.NodeStats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'online'),
			COUNT(*) FILTER (WHERE status <> 'online'),
			COALESCE(SUM(cpu_count), 0),
			COALESCE(SUM(memory_total_gb), 0),
			COALESCE(SUM(gpu_count), 0),
			COALESCE(SUM(storage_total_gb), 0),
			COALESCE(SUM(storage_used_gb), 0)
		FROM nodes WHERE is_active`

	var st store.NodeStats
	err := s.db.QueryRowContext(ctx, query).Scan(
		&st.TotalNodes, &st.OnlineNodes, &st.OfflineNodes,
		&st.TotalCPU, &st.TotalMemoryGB, &st.TotalGPU,
		&st.TotalStorageGB, &st.UsedStorageGB,
	)
	if err != nil {
		return nil, fmt.Errorf("node stats: %w", err)
	}
	return &st, nil
}

func collectNodes(rows *sql.Rows) ([]store.Node, error) {
	var nodes []store.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}
