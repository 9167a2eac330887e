package models

import (
	"time"

	"github.com/google/uuid"
)

type IncidentType string

const (
	TypeEntanglement  IncidentType = "ENTANGLEMENT"
	TypeFall          IncidentType = "FALL"
	TypeCollision     IncidentType = "COLLISION"
	TypeFire          IncidentType = "FIRE"
	TypeElectricShock IncidentType = "ELECTRIC_SHOCK"
	TypeOther         IncidentType = "OTHER"
)

func (t IncidentType) Valid() bool {
	switch t {
	case TypeEntanglement, TypeFall, TypeCollision, TypeFire, TypeElectricShock, TypeOther:
		return true
	}
	return false
}

const (
	MinSeverity = 1
	MaxSeverity = 5
)

type Incident struct {
	ID          uuid.UUID    `json:"id"`
	FactoryID   uuid.UUID    `json:"factory_id"`
	Type        IncidentType `json:"type"`
	Severity    int          `json:"severity"`
	Description *string      `json:"description"`
	PositionX   float64      `json:"position_x"`
	PositionY   float64      `json:"position_y"`
	PositionZ   float64      `json:"position_z"`
	NPCID       *uuid.UUID   `json:"npc_id"`
	IsResolved  bool         `json:"is_resolved"`
	Timestamp   time.Time    `json:"timestamp"`
	ResolvedAt  *time.Time   `json:"resolved_at"`
}
