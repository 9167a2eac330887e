package repos

import (
	"context"

	"github.com/google/uuid"

	"factory-digital-twin/factory/internal/models"
)

type CamerasRepo struct {
	db DBTX
}

func NewCamerasRepo(db DBTX) *CamerasRepo {
	return &CamerasRepo{db: db}
}

// ListActiveByFactory returns the active camera set of one factory ordered by
// id so that downstream query results are deterministic.
func (r *CamerasRepo) ListActiveByFactory(ctx context.Context, factoryID uuid.UUID) ([]models.CameraPlacement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, factory_id, name,
		       position_x, position_y, position_z,
		       rotation_x, rotation_y, rotation_z,
		       fov, is_active, created_at, updated_at
		FROM camera_placements
		WHERE factory_id = $1 AND is_active = TRUE
		ORDER BY id
	`, factoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cameras []models.CameraPlacement
	for rows.Next() {
		var c models.CameraPlacement
		if err := rows.Scan(
			&c.ID, &c.FactoryID, &c.Name,
			&c.PositionX, &c.PositionY, &c.PositionZ,
			&c.RotationX, &c.RotationY, &c.RotationZ,
			&c.FOV, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		cameras = append(cameras, c)
	}
	return cameras, rows.Err()
}
