// Package ingest drives incident creation: validate the referenced factory,
// persist, match cameras, broadcast. Each step past persistence is
// best-effort, a failed match or broadcast degrades the response instead of
// failing it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"factory-digital-twin/incident/internal/models"
	"factory-digital-twin/shared/broadcast"
	"factory-digital-twin/shared/events"
	"factory-digital-twin/shared/influxx"
	"factory-digital-twin/shared/logx"
	"factory-digital-twin/shared/metricsx"
	"factory-digital-twin/shared/mqx"
)

// ErrFactoryNotFound rejects a create whose factory reference cannot be
// verified. An unreachable factory-core counts as unverified.
var ErrFactoryNotFound = errors.New("factory does not exist")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// FactoryDirectory answers whether a factory exists right now.
type FactoryDirectory interface {
	FactoryExists(ctx context.Context, factoryID uuid.UUID) (bool, error)
}

// CameraMatcher returns the ids of cameras covering a point, nearest first.
type CameraMatcher interface {
	CoveringCameraIDs(ctx context.Context, factoryID uuid.UUID, x, y, z float64, maxDistance float64) ([]uuid.UUID, error)
}

type IncidentStore interface {
	Insert(ctx context.Context, inc models.Incident) (models.Incident, error)
}

type CreateInput struct {
	FactoryID   uuid.UUID           `json:"factory_id"`
	Type        models.IncidentType `json:"type"`
	Severity    int                 `json:"severity"`
	Description *string             `json:"description"`
	PositionX   float64             `json:"position_x"`
	PositionY   float64             `json:"position_y"`
	PositionZ   float64             `json:"position_z"`
	NPCID       *uuid.UUID          `json:"npc_id"`
}

type Result struct {
	Incident          models.Incident
	DetectedCameraIDs []uuid.UUID
}

type Orchestrator struct {
	Logger    logx.Logger
	Factories FactoryDirectory
	Matcher   CameraMatcher
	Store     IncidentStore
	Publisher broadcast.Publisher

	// Optional mirrors; nil disables them.
	Producer *mqx.Producer
	Influx   *influxx.Client

	MaxDistance   float64
	LookupTimeout time.Duration
	MatchTimeout  time.Duration
}

func (o *Orchestrator) Create(ctx context.Context, input CreateInput) (Result, error) {
	if err := validate(input); err != nil {
		return Result{}, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, o.LookupTimeout)
	exists, err := o.Factories.FactoryExists(lookupCtx, input.FactoryID)
	cancel()
	if err != nil {
		o.Logger.Warn(ctx, "factory_lookup_failed", "factory existence check failed",
			slog.String("factory_id", input.FactoryID.String()),
			slog.String("error", err.Error()),
		)
	}
	if err != nil || !exists {
		return Result{}, ErrFactoryNotFound
	}

	incident, err := o.Store.Insert(ctx, models.Incident{
		FactoryID:   input.FactoryID,
		Type:        input.Type,
		Severity:    input.Severity,
		Description: input.Description,
		PositionX:   input.PositionX,
		PositionY:   input.PositionY,
		PositionZ:   input.PositionZ,
		NPCID:       input.NPCID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("persist incident: %w", err)
	}
	metricsx.IncIncidentsCreated(string(incident.Type))

	detected := o.matchCameras(ctx, incident)
	o.broadcast(ctx, incident)
	o.mirror(ctx, incident, detected)

	return Result{Incident: incident, DetectedCameraIDs: detected}, nil
}

func validate(input CreateInput) error {
	if input.FactoryID == uuid.Nil {
		return &ValidationError{Field: "factory_id", Message: "is required"}
	}
	if !input.Type.Valid() {
		return &ValidationError{Field: "type", Message: "unknown incident type"}
	}
	if input.Severity < models.MinSeverity || input.Severity > models.MaxSeverity {
		return &ValidationError{Field: "severity", Message: "must be between 1 and 5"}
	}
	return nil
}

// matchCameras never fails the create. The detected set is a point-in-time
// snapshot attached to the response only.
func (o *Orchestrator) matchCameras(ctx context.Context, incident models.Incident) []uuid.UUID {
	matchCtx, cancel := context.WithTimeout(ctx, o.MatchTimeout)
	defer cancel()

	ids, err := o.Matcher.CoveringCameraIDs(matchCtx, incident.FactoryID, incident.PositionX, incident.PositionY, incident.PositionZ, o.MaxDistance)
	if err != nil {
		o.Logger.Warn(ctx, "camera_match_failed", "camera matching degraded to empty set",
			slog.String("incident_id", incident.ID.String()),
			slog.String("factory_id", incident.FactoryID.String()),
			slog.String("error", err.Error()),
		)
		return []uuid.UUID{}
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids
}

func (o *Orchestrator) broadcast(ctx context.Context, incident models.Incident) {
	if o.Publisher == nil {
		return
	}
	err := o.Publisher.Publish(ctx, events.ChannelIncidents, events.Message{
		Event: events.IncidentCreated,
		Data:  incidentEventData(incident),
	})
	if err != nil {
		o.Logger.Warn(ctx, "broadcast_failed", "incident event dropped",
			slog.String("incident_id", incident.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// mirror forwards the incident to the analytics sinks. Both writes are
// fire-and-forget.
func (o *Orchestrator) mirror(ctx context.Context, incident models.Incident, detected []uuid.UUID) {
	if o.Producer != nil {
		msg := events.Message{Event: events.IncidentCreated, Data: incidentEventData(incident)}
		payload, err := msg.Encode()
		if err == nil {
			err = o.Producer.Publish(ctx, events.TopicIncidentEvents, []byte(incident.ID.String()), payload, map[string]string{
				"factory_id": incident.FactoryID.String(),
			})
		}
		if err != nil {
			o.Logger.Warn(ctx, "kafka_mirror_failed", "incident event not mirrored to kafka",
				slog.String("incident_id", incident.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if o.Influx != nil {
		err := o.Influx.WritePoint(ctx, "incidents",
			map[string]string{
				"factory_id": incident.FactoryID.String(),
				"type":       string(incident.Type),
			},
			map[string]any{
				"severity":         incident.Severity,
				"position_x":       incident.PositionX,
				"position_y":       incident.PositionY,
				"position_z":       incident.PositionZ,
				"detected_cameras": len(detected),
			},
			incident.Timestamp,
		)
		if err != nil {
			metricsx.IncInfluxWriteFailures()
			o.Logger.Warn(ctx, "influx_write_failed", "incident telemetry point dropped",
				slog.String("incident_id", incident.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func incidentEventData(incident models.Incident) map[string]any {
	return map[string]any{
		"id":          incident.ID.String(),
		"factory_id":  incident.FactoryID.String(),
		"type":        string(incident.Type),
		"severity":    incident.Severity,
		"description": incident.Description,
		"position": map[string]float64{
			"x": incident.PositionX,
			"y": incident.PositionY,
			"z": incident.PositionZ,
		},
		"timestamp": incident.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
