package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"factory-digital-twin/factory/internal/models"
)

var ErrFactoryNotFound = errors.New("factory not found")

type FactoriesRepo struct {
	db DBTX
}

func NewFactoriesRepo(db DBTX) *FactoriesRepo {
	return &FactoriesRepo{db: db}
}

func (r *FactoriesRepo) GetByID(ctx context.Context, factoryID uuid.UUID) (models.Factory, error) {
	var f models.Factory
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description, layout_json, created_at, updated_at
		FROM factories
		WHERE id = $1
	`, factoryID).
		Scan(&f.ID, &f.Name, &f.Description, &f.LayoutJSON, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Factory{}, ErrFactoryNotFound
	}
	return f, err
}

func (r *FactoriesRepo) Exists(ctx context.Context, factoryID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM factories WHERE id = $1)
	`, factoryID).Scan(&exists)
	return exists, err
}
