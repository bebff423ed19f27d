package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edustack/campus-api/internal/models"
)

// CatalogRepository exposes read-only module/batch/session lookups. The core
// consumes these for existence checks and session counting; authoring the
// catalog itself belongs to external collaborators.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindModuleByID returns a module.
func (r *CatalogRepository) FindModuleByID(ctx context.Context, id string) (*models.Module, error) {
	const query = `SELECT id, name, archived, created_at FROM modules WHERE id = $1`
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find module: %w", err)
	}
	return &module, nil
}

// FindBatchByID returns a batch.
func (r *CatalogRepository) FindBatchByID(ctx context.Context, id string) (*models.Batch, error) {
	const query = `SELECT id, module_id, name, archived, created_at FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find batch: %w", err)
	}
	return &batch, nil
}

// FindSessionByID returns a session, which resolves to its batch.
func (r *CatalogRepository) FindSessionByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, batch_id, title, session_date, created_at FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// CountSessionsByBatch returns the total number of sessions in a batch.
func (r *CatalogRepository) CountSessionsByBatch(ctx context.Context, batchID string) (int, error) {
	const query = `SELECT COUNT(*) FROM sessions WHERE batch_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, batchID); err != nil {
		return 0, fmt.Errorf("count batch sessions: %w", err)
	}
	return count, nil
}
