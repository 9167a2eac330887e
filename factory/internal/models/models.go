package models

import (
	"time"

	"github.com/google/uuid"
)

type Factory struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	LayoutJSON  []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CameraPlacement is a mounted camera inside one factory. Position is scene
// coordinates, rotation is euler radians, FOV is degrees.
type CameraPlacement struct {
	ID        uuid.UUID `json:"id"`
	FactoryID uuid.UUID `json:"factory_id"`
	Name      string    `json:"name"`
	PositionX float64   `json:"position_x"`
	PositionY float64   `json:"position_y"`
	PositionZ float64   `json:"position_z"`
	RotationX float64   `json:"rotation_x"`
	RotationY float64   `json:"rotation_y"`
	RotationZ float64   `json:"rotation_z"`
	FOV       float64   `json:"fov"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
