package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"factory-digital-twin/factory/internal/models"
	"factory-digital-twin/factory/internal/repos"
	"factory-digital-twin/factory/internal/spatial"
	"factory-digital-twin/shared/broadcast"
	"factory-digital-twin/shared/logx"
)

type fakeFactories struct {
	factories map[uuid.UUID]models.Factory
	existsErr error
}

func (f *fakeFactories) GetByID(ctx context.Context, factoryID uuid.UUID) (models.Factory, error) {
	if factory, ok := f.factories[factoryID]; ok {
		return factory, nil
	}
	return models.Factory{}, repos.ErrFactoryNotFound
}

func (f *fakeFactories) Exists(ctx context.Context, factoryID uuid.UUID) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.factories[factoryID]
	return ok, nil
}

type fakeCameraSource struct {
	cameras []models.CameraPlacement
}

func (f *fakeCameraSource) ListActiveByFactory(ctx context.Context, factoryID uuid.UUID) ([]models.CameraPlacement, error) {
	return f.cameras, nil
}

func newTestService(factories map[uuid.UUID]models.Factory, cameras []models.CameraPlacement) *Service {
	return &Service{
		Logger:    logx.New("factory-test", "test", "", "error"),
		Factories: &fakeFactories{factories: factories},
		Spatial:   spatial.NewService(&fakeCameraSource{cameras: cameras}),
		Hub:       broadcast.NewHub(8),
	}
}

func serve(t *testing.T, s *Service, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	s.Routes(mux)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestGetFactory(t *testing.T) {
	factoryID := uuid.New()
	s := newTestService(map[uuid.UUID]models.Factory{
		factoryID: {ID: factoryID, Name: "plant-7"},
	}, nil)

	rec := serve(t, s, http.MethodGet, "/api/v1/factories/"+factoryID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got models.Factory
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != factoryID || got.Name != "plant-7" {
		t.Fatalf("got %+v", got)
	}
}

func TestGetFactoryNotFound(t *testing.T) {
	s := newTestService(nil, nil)

	rec := serve(t, s, http.MethodGet, "/api/v1/factories/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "NOT_FOUND") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestGetFactoryInvalidID(t *testing.T) {
	s := newTestService(nil, nil)

	rec := serve(t, s, http.MethodGet, "/api/v1/factories/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestNearestCameras(t *testing.T) {
	factoryID := uuid.New()
	near := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	far := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	s := newTestService(
		map[uuid.UUID]models.Factory{factoryID: {ID: factoryID}},
		[]models.CameraPlacement{
			{ID: far, FactoryID: factoryID, FOV: 90, IsActive: true, PositionZ: 30},
			{ID: near, FactoryID: factoryID, FOV: 90, IsActive: true, PositionZ: 10},
		},
	)

	body := `{"factory_id":"` + factoryID.String() + `","position":{"x":0,"y":0,"z":0},"limit":1}`
	rec := serve(t, s, http.MethodPost, "/api/v1/spatial/nearest-cameras", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var got []spatial.Match
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Camera.ID != near || got[0].Distance != 10 {
		t.Fatalf("got %+v", got)
	}
}

func TestNearestCamerasUnknownFactory(t *testing.T) {
	s := newTestService(nil, nil)

	body := `{"factory_id":"` + uuid.NewString() + `","position":{"x":0,"y":0,"z":0}}`
	rec := serve(t, s, http.MethodPost, "/api/v1/spatial/nearest-cameras", body)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestNearestCamerasFactoryLookupError(t *testing.T) {
	s := newTestService(nil, nil)
	s.Factories = &fakeFactories{existsErr: errors.New("connection refused")}

	body := `{"factory_id":"` + uuid.NewString() + `","position":{"x":0,"y":0,"z":0}}`
	rec := serve(t, s, http.MethodPost, "/api/v1/spatial/nearest-cameras", body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestNearestCamerasLimitValidation(t *testing.T) {
	factoryID := uuid.New()
	s := newTestService(map[uuid.UUID]models.Factory{factoryID: {ID: factoryID}}, nil)

	body := `{"factory_id":"` + factoryID.String() + `","position":{"x":0,"y":0,"z":0},"limit":21}`
	rec := serve(t, s, http.MethodPost, "/api/v1/spatial/nearest-cameras", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCoveringCameras(t *testing.T) {
	factoryID := uuid.New()
	camID := uuid.New()
	s := newTestService(
		map[uuid.UUID]models.Factory{factoryID: {ID: factoryID}},
		[]models.CameraPlacement{
			{ID: camID, FactoryID: factoryID, FOV: 90, IsActive: true},
		},
	)

	target := "/api/v1/spatial/covering-cameras?factory_id=" + factoryID.String() + "&max_distance=50"
	rec := serve(t, s, http.MethodPost, target, `{"x":0,"y":0,"z":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var got []spatial.Match
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Camera.ID != camID {
		t.Fatalf("got %+v", got)
	}

	// Same camera, point out of range.
	rec = serve(t, s, http.MethodPost, target, `{"x":0,"y":0,"z":100}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("out-of-range point covered: %+v", got)
	}
}

func TestCoveringCamerasDefaultsMaxDistance(t *testing.T) {
	factoryID := uuid.New()
	s := newTestService(
		map[uuid.UUID]models.Factory{factoryID: {ID: factoryID}},
		[]models.CameraPlacement{
			{ID: uuid.New(), FactoryID: factoryID, FOV: 90, IsActive: true},
		},
	)

	// 49 away is inside the default 50 range, 60 away is not.
	target := "/api/v1/spatial/covering-cameras?factory_id=" + factoryID.String()
	rec := serve(t, s, http.MethodPost, target, `{"x":0,"y":0,"z":49}`)
	var got []spatial.Match
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("default range should cover 49 away, got %+v", got)
	}

	rec = serve(t, s, http.MethodPost, target, `{"x":0,"y":0,"z":60}`)
	got = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("default range should not cover 60 away, got %+v", got)
	}
}

func TestCoveringCamerasBadQuery(t *testing.T) {
	s := newTestService(nil, nil)

	rec := serve(t, s, http.MethodPost, "/api/v1/spatial/covering-cameras?factory_id=nope", `{"x":0,"y":0,"z":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = serve(t, s, http.MethodPost, "/api/v1/spatial/covering-cameras?factory_id="+uuid.NewString()+"&max_distance=-1", `{"x":0,"y":0,"z":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCamerasInArea(t *testing.T) {
	factoryID := uuid.New()
	inside := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	outside := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	s := newTestService(
		map[uuid.UUID]models.Factory{factoryID: {ID: factoryID}},
		[]models.CameraPlacement{
			{ID: outside, FactoryID: factoryID, FOV: 90, IsActive: true, PositionX: 20},
			{ID: inside, FactoryID: factoryID, FOV: 90, IsActive: true, PositionX: 5, PositionY: 2, PositionZ: 5},
		},
	)

	body := `{"factory_id":"` + factoryID.String() + `","min_point":{"x":0,"y":0,"z":0},"max_point":{"x":10,"y":5,"z":10}}`
	rec := serve(t, s, http.MethodPost, "/api/v1/spatial/cameras-in-area", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var got []models.CameraPlacement
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != inside {
		t.Fatalf("got %+v", got)
	}
}

func TestCamerasInAreaInvertedBox(t *testing.T) {
	factoryID := uuid.New()
	s := newTestService(map[uuid.UUID]models.Factory{factoryID: {ID: factoryID}}, nil)

	body := `{"factory_id":"` + factoryID.String() + `","min_point":{"x":10,"y":0,"z":0},"max_point":{"x":0,"y":5,"z":10}}`
	rec := serve(t, s, http.MethodPost, "/api/v1/spatial/cameras-in-area", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
