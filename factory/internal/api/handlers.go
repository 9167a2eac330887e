package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"factory-digital-twin/factory/internal/geometry"
	"factory-digital-twin/factory/internal/models"
	"factory-digital-twin/factory/internal/repos"
	"factory-digital-twin/factory/internal/spatial"
	"factory-digital-twin/shared/broadcast"
	"factory-digital-twin/shared/events"
	"factory-digital-twin/shared/httpx"
	"factory-digital-twin/shared/logx"
	"factory-digital-twin/shared/sse"
)

const (
	defaultNearestLimit  = 5
	maxNearestLimit      = 20
	defaultCoverageRange = 50.0
)

type FactoryStore interface {
	GetByID(ctx context.Context, factoryID uuid.UUID) (models.Factory, error)
	Exists(ctx context.Context, factoryID uuid.UUID) (bool, error)
}

type SpatialQueries interface {
	NearestN(ctx context.Context, factoryID uuid.UUID, point geometry.Vec3, limit int, maxDistance *float64) ([]spatial.Match, error)
	CoveringPoint(ctx context.Context, factoryID uuid.UUID, point geometry.Vec3, maxDistance float64) ([]spatial.Match, error)
	InBoundingBox(ctx context.Context, factoryID uuid.UUID, min, max geometry.Vec3) ([]models.CameraPlacement, error)
}

type Service struct {
	Logger    logx.Logger
	Factories FactoryStore
	Spatial   SpatialQueries
	Hub       *broadcast.Hub
}

func (s *Service) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/factories/{id}", s.handleGetFactory)
	mux.HandleFunc("POST /api/v1/spatial/nearest-cameras", s.handleNearestCameras)
	mux.HandleFunc("POST /api/v1/spatial/covering-cameras", s.handleCoveringCameras)
	mux.HandleFunc("POST /api/v1/spatial/cameras-in-area", s.handleCamerasInArea)
	mux.HandleFunc("GET /api/v1/events/factory", s.handleFactoryEvents)
	mux.HandleFunc("GET /api/v1/events/cameras", s.handleCameraEvents)
	mux.HandleFunc("GET /api/v1/events/all", s.handleAllEvents)
}

// StreamPaths lists the long-lived endpoints that must bypass the request
// timeout middleware.
func StreamPaths() map[string]bool {
	return map[string]bool{
		"/api/v1/events/factory": true,
		"/api/v1/events/cameras": true,
		"/api/v1/events/all":     true,
	}
}

func (s *Service) handleGetFactory(w http.ResponseWriter, r *http.Request) {
	factoryID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid factory id", nil)
		return
	}

	factory, err := s.Factories.GetByID(r.Context(), factoryID)
	if err != nil {
		if errors.Is(err, repos.ErrFactoryNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "factory not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load factory", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, factory)
}

type nearestCamerasRequest struct {
	FactoryID   uuid.UUID     `json:"factory_id"`
	Position    geometry.Vec3 `json:"position"`
	Limit       int           `json:"limit"`
	MaxDistance *float64      `json:"max_distance"`
}

func (s *Service) handleNearestCameras(w http.ResponseWriter, r *http.Request) {
	var req nearestCamerasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	if req.FactoryID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "factory_id is required", nil)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultNearestLimit
	}
	if req.Limit < 1 || req.Limit > maxNearestLimit {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "limit must be between 1 and 20", nil)
		return
	}
	if req.MaxDistance != nil && *req.MaxDistance < 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "max_distance must not be negative", nil)
		return
	}
	if !s.factoryExists(w, r, req.FactoryID) {
		return
	}

	matches, err := s.Spatial.NearestN(r.Context(), req.FactoryID, req.Position, req.Limit, req.MaxDistance)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "spatial query failed", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, matches)
}

func (s *Service) handleCoveringCameras(w http.ResponseWriter, r *http.Request) {
	factoryID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("factory_id")))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid factory_id", nil)
		return
	}

	maxDistance := defaultCoverageRange
	if raw := strings.TrimSpace(r.URL.Query().Get("max_distance")); raw != "" {
		maxDistance, err = strconv.ParseFloat(raw, 64)
		if err != nil || maxDistance < 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid max_distance", nil)
			return
		}
	}

	var position geometry.Vec3
	if err := json.NewDecoder(r.Body).Decode(&position); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	if !s.factoryExists(w, r, factoryID) {
		return
	}

	matches, err := s.Spatial.CoveringPoint(r.Context(), factoryID, position, maxDistance)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "spatial query failed", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, matches)
}

type camerasInAreaRequest struct {
	FactoryID uuid.UUID     `json:"factory_id"`
	MinPoint  geometry.Vec3 `json:"min_point"`
	MaxPoint  geometry.Vec3 `json:"max_point"`
}

func (s *Service) handleCamerasInArea(w http.ResponseWriter, r *http.Request) {
	var req camerasInAreaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	if req.FactoryID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "factory_id is required", nil)
		return
	}
	if req.MinPoint.X > req.MaxPoint.X || req.MinPoint.Y > req.MaxPoint.Y || req.MinPoint.Z > req.MaxPoint.Z {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "min_point must not exceed max_point", nil)
		return
	}
	if !s.factoryExists(w, r, req.FactoryID) {
		return
	}

	cameras, err := s.Spatial.InBoundingBox(r.Context(), req.FactoryID, req.MinPoint, req.MaxPoint)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "spatial query failed", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cameras)
}

// factoryExists writes the error response itself when the factory is missing
// or the lookup fails. Spatial queries over an unknown factory must 404
// rather than return an empty list.
func (s *Service) factoryExists(w http.ResponseWriter, r *http.Request, factoryID uuid.UUID) bool {
	exists, err := s.Factories.Exists(r.Context(), factoryID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load factory", nil)
		return false
	}
	if !exists {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "factory not found", nil)
		return false
	}
	return true
}

func (s *Service) handleFactoryEvents(w http.ResponseWriter, r *http.Request) {
	sse.Stream(w, r, s.Hub, s.Logger, events.ChannelFactories)
}

func (s *Service) handleCameraEvents(w http.ResponseWriter, r *http.Request) {
	sse.Stream(w, r, s.Hub, s.Logger, events.ChannelCameras)
}

func (s *Service) handleAllEvents(w http.ResponseWriter, r *http.Request) {
	sse.Stream(w, r, s.Hub, s.Logger, events.ChannelFactories, events.ChannelCameras, events.ChannelIncidents)
}
