package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"factory-digital-twin/incident/internal/ingest"
	"factory-digital-twin/incident/internal/models"
	"factory-digital-twin/incident/internal/repos"
	"factory-digital-twin/shared/broadcast"
	"factory-digital-twin/shared/events"
	"factory-digital-twin/shared/httpx"
	"factory-digital-twin/shared/logx"
	"factory-digital-twin/shared/sse"
)

type IncidentStore interface {
	List(ctx context.Context, filter repos.ListFilter) ([]models.Incident, error)
	GetByID(ctx context.Context, incidentID uuid.UUID) (models.Incident, error)
	Update(ctx context.Context, incidentID uuid.UUID, description *string, isResolved *bool) (models.Incident, error)
	Delete(ctx context.Context, incidentID uuid.UUID) error
}

type Service struct {
	Logger       logx.Logger
	Orchestrator *ingest.Orchestrator
	Store        IncidentStore
	Hub          *broadcast.Hub
	Publisher    broadcast.Publisher
}

func (s *Service) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/incidents", s.handleCreate)
	mux.HandleFunc("GET /api/v1/incidents", s.handleList)
	mux.HandleFunc("GET /api/v1/incidents/stream", s.handleStream)
	mux.HandleFunc("GET /api/v1/incidents/{id}", s.handleGet)
	mux.HandleFunc("PUT /api/v1/incidents/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/v1/incidents/{id}", s.handleDelete)
}

func StreamPaths() map[string]bool {
	return map[string]bool{
		"/api/v1/incidents/stream": true,
	}
}

// incidentResponse is an incident plus the ephemeral detected camera list,
// present only on creation.
type incidentResponse struct {
	models.Incident
	DetectedCameraIDs []uuid.UUID `json:"detected_camera_ids,omitempty"`
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input ingest.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}

	res, err := s.Orchestrator.Create(r.Context(), input)
	if err != nil {
		var verr *ingest.ValidationError
		switch {
		case errors.As(err, &verr):
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", verr.Error(), map[string]any{"field": verr.Field})
		case errors.Is(err, ingest.ErrFactoryNotFound):
			httpx.WriteError(w, r, http.StatusBadRequest, "FAILED_PRECONDITION", "factory does not exist", nil)
		default:
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create incident", nil)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, incidentResponse{
		Incident:          res.Incident,
		DetectedCameraIDs: res.DetectedCameraIDs,
	})
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	var filter repos.ListFilter

	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("factory_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid factory_id", nil)
			return
		}
		filter.FactoryID = &id
	}
	if raw := strings.TrimSpace(q.Get("is_resolved")); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid is_resolved", nil)
			return
		}
		filter.IsResolved = &resolved
	}
	filter.Limit = 100
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid limit", nil)
			return
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid offset", nil)
			return
		}
		filter.Offset = offset
	}

	incidents, err := s.Store.List(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list incidents", nil)
		return
	}
	if incidents == nil {
		incidents = []models.Incident{}
	}
	httpx.WriteJSON(w, http.StatusOK, incidents)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	incidentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid incident id", nil)
		return
	}

	incident, err := s.Store.GetByID(r.Context(), incidentID)
	if err != nil {
		if errors.Is(err, repos.ErrIncidentNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "incident not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load incident", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, incident)
}

type updateRequest struct {
	Description *string `json:"description"`
	IsResolved  *bool   `json:"is_resolved"`
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	incidentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid incident id", nil)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}

	incident, err := s.Store.Update(r.Context(), incidentID, req.Description, req.IsResolved)
	if err != nil {
		if errors.Is(err, repos.ErrIncidentNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "incident not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update incident", nil)
		return
	}

	if req.IsResolved != nil && *req.IsResolved && s.Publisher != nil {
		err := s.Publisher.Publish(r.Context(), events.ChannelIncidents, events.Message{
			Event: events.IncidentResolved,
			Data: map[string]any{
				"id":         incident.ID.String(),
				"factory_id": incident.FactoryID.String(),
			},
		})
		if err != nil {
			s.Logger.Warn(r.Context(), "broadcast_failed", "incident resolved event dropped",
				slog.String("incident_id", incident.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	httpx.WriteJSON(w, http.StatusOK, incident)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	incidentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid incident id", nil)
		return
	}

	if err := s.Store.Delete(r.Context(), incidentID); err != nil {
		if errors.Is(err, repos.ErrIncidentNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "incident not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete incident", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	sse.Stream(w, r, s.Hub, s.Logger, events.ChannelIncidents)
}
