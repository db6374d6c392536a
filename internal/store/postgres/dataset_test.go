package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/YangYuS8/mlsmanager/internal/store"
)

func TestUpsertDatasets_MixedBatch(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	nodeID := uuid.New()
	size := int64(1 << 30)
	files := 1200
	format := "parquet"

	mock.ExpectBegin()
	// first report matches an existing row
	mock.ExpectExec(`UPDATE datasets SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// second report is new: update misses, insert follows
	mock.ExpectExec(`UPDATE datasets SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO datasets`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	registered, updated, err := s.UpsertDatasets(context.Background(), nodeID, []store.Dataset{
		{Name: "imagenet", LocalPath: "/data/datasets/imagenet", SizeBytes: &size, FileCount: &files, Format: &format},
		{Name: "coco", LocalPath: "/data/datasets/coco", SizeBytes: &size},
	})
	if err != nil {
		t.Fatalf("UpsertDatasets failed: %v", err)
	}
	if registered != 1 || updated != 1 {
		t.Errorf("got registered=%d updated=%d, want 1/1", registered, updated)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertDatasets_EmptyBatch(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	registered, updated, err := s.UpsertDatasets(context.Background(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("UpsertDatasets failed: %v", err)
	}
	if registered != 0 || updated != 0 {
		t.Errorf("got registered=%d updated=%d, want 0/0", registered, updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database access: %v", err)
	}
}

func TestListDatasetsForNode(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	nodeID := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "name", "node_id", "local_path", "size_bytes", "file_count",
		"format", "description", "created_at", "updated_at",
	}).
		AddRow(uuid.New(), "coco", nodeID, "/data/datasets/coco", int64(5<<30), 330, "jpeg", nil, now, now).
		AddRow(uuid.New(), "imagenet", nodeID, "/data/datasets/imagenet", int64(150<<30), 1200000, "jpeg", nil, now, now)

	mock.ExpectQuery(`SELECT .+ FROM datasets WHERE node_id`).
		WithArgs(nodeID).
		WillReturnRows(rows)

	datasets, err := s.ListDatasetsForNode(context.Background(), nodeID)
	if err != nil {
		t.Fatalf("ListDatasetsForNode failed: %v", err)
	}
	if len(datasets) != 2 {
		t.Errorf("got %d datasets, want 2", len(datasets))
	}
	if datasets[0].LocalPath != "/data/datasets/coco" {
		t.Errorf("unexpected order: %v", datasets[0].LocalPath)
	}
}
