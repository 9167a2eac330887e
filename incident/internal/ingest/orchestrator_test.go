package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"factory-digital-twin/incident/internal/models"
	"factory-digital-twin/shared/broadcast"
	"factory-digital-twin/shared/events"
	"factory-digital-twin/shared/logx"
)

type fakeDirectory struct {
	exists bool
	err    error
	calls  int
}

func (f *fakeDirectory) FactoryExists(ctx context.Context, factoryID uuid.UUID) (bool, error) {
	f.calls++
	return f.exists, f.err
}

type fakeMatcher struct {
	ids []uuid.UUID
	err error
}

func (f *fakeMatcher) CoveringCameraIDs(ctx context.Context, factoryID uuid.UUID, x, y, z float64, maxDistance float64) ([]uuid.UUID, error) {
	return f.ids, f.err
}

type fakeStore struct {
	inserted []models.Incident
	err      error
}

func (f *fakeStore) Insert(ctx context.Context, inc models.Incident) (models.Incident, error) {
	if f.err != nil {
		return models.Incident{}, f.err
	}
	inc.ID = uuid.New()
	inc.Timestamp = time.Now().UTC()
	f.inserted = append(f.inserted, inc)
	return inc, nil
}

func validInput() CreateInput {
	return CreateInput{
		FactoryID: uuid.New(),
		Type:      models.TypeFall,
		Severity:  3,
		PositionX: 1,
		PositionY: 0,
		PositionZ: 2,
	}
}

func newOrchestrator(dir *fakeDirectory, matcher *fakeMatcher, store *fakeStore, hub *broadcast.Hub) *Orchestrator {
	var pub broadcast.Publisher
	if hub != nil {
		pub = hub
	}
	return &Orchestrator{
		Logger:        logx.New("ingest-test", "test", "", "error"),
		Factories:     dir,
		Matcher:       matcher,
		Store:         store,
		Publisher:     pub,
		MaxDistance:   50,
		LookupTimeout: time.Second,
		MatchTimeout:  time.Second,
	}
}

func TestCreateHappyPath(t *testing.T) {
	camID := uuid.New()
	dir := &fakeDirectory{exists: true}
	store := &fakeStore{}
	hub := broadcast.NewHub(8)
	o := newOrchestrator(dir, &fakeMatcher{ids: []uuid.UUID{camID}}, store, hub)

	sub := hub.Subscribe(events.ChannelIncidents)
	defer sub.Close()

	input := validInput()
	res, err := o.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Incident.ID == uuid.Nil {
		t.Fatalf("incident id not assigned")
	}
	if res.Incident.IsResolved {
		t.Fatalf("new incident must not be resolved")
	}
	if len(res.DetectedCameraIDs) != 1 || res.DetectedCameraIDs[0] != camID {
		t.Fatalf("detected = %v", res.DetectedCameraIDs)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d incidents", len(store.inserted))
	}

	select {
	case d := <-sub.C():
		var msg struct {
			Event string `json:"event"`
			Data  struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Severity int    `json:"severity"`
				Position struct {
					X float64 `json:"x"`
					Z float64 `json:"z"`
				} `json:"position"`
			} `json:"data"`
		}
		if err := json.Unmarshal(d.Payload, &msg); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if msg.Event != events.IncidentCreated {
			t.Fatalf("event = %q", msg.Event)
		}
		if msg.Data.ID != res.Incident.ID.String() || msg.Data.Type != "FALL" || msg.Data.Severity != 3 {
			t.Fatalf("event data = %+v", msg.Data)
		}
		if msg.Data.Position.X != input.PositionX || msg.Data.Position.Z != input.PositionZ {
			t.Fatalf("event position = %+v", msg.Data.Position)
		}
	case <-time.After(time.Second):
		t.Fatalf("incident event not broadcast")
	}
}

func TestCreateValidation(t *testing.T) {
	o := newOrchestrator(&fakeDirectory{exists: true}, &fakeMatcher{}, &fakeStore{}, nil)

	cases := []struct {
		name  string
		mut   func(*CreateInput)
		field string
	}{
		{"missing factory id", func(in *CreateInput) { in.FactoryID = uuid.Nil }, "factory_id"},
		{"bad type", func(in *CreateInput) { in.Type = "EARTHQUAKE" }, "type"},
		{"severity too low", func(in *CreateInput) { in.Severity = 0 }, "severity"},
		{"severity too high", func(in *CreateInput) { in.Severity = 6 }, "severity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mut(&input)

			_, err := o.Create(context.Background(), input)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestCreateFactoryMissing(t *testing.T) {
	store := &fakeStore{}
	o := newOrchestrator(&fakeDirectory{exists: false}, &fakeMatcher{}, store, nil)

	_, err := o.Create(context.Background(), validInput())
	if !errors.Is(err, ErrFactoryNotFound) {
		t.Fatalf("err = %v, want ErrFactoryNotFound", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("nothing must be persisted when the factory is missing")
	}
}

func TestCreateFactoryLookupUnreachable(t *testing.T) {
	store := &fakeStore{}
	o := newOrchestrator(&fakeDirectory{err: errors.New("dial timeout")}, &fakeMatcher{}, store, nil)

	_, err := o.Create(context.Background(), validInput())
	if !errors.Is(err, ErrFactoryNotFound) {
		t.Fatalf("unverifiable factory must reject the create, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("nothing must be persisted on an unverifiable factory")
	}
}

func TestCreateMatcherDownDegrades(t *testing.T) {
	store := &fakeStore{}
	o := newOrchestrator(&fakeDirectory{exists: true}, &fakeMatcher{err: errors.New("connection refused")}, store, nil)

	res, err := o.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("matcher failure must not fail the create: %v", err)
	}
	if res.DetectedCameraIDs == nil || len(res.DetectedCameraIDs) != 0 {
		t.Fatalf("detected = %#v, want empty non-nil slice", res.DetectedCameraIDs)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("incident must stay persisted despite matcher failure")
	}
}

func TestCreateStorageFailureAborts(t *testing.T) {
	boom := errors.New("insert failed")
	o := newOrchestrator(&fakeDirectory{exists: true}, &fakeMatcher{}, &fakeStore{err: boom}, nil)

	_, err := o.Create(context.Background(), validInput())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped storage error", err)
	}
}

func TestCreateWithoutSubscribersStillSucceeds(t *testing.T) {
	hub := broadcast.NewHub(8)
	o := newOrchestrator(&fakeDirectory{exists: true}, &fakeMatcher{}, &fakeStore{}, hub)

	if _, err := o.Create(context.Background(), validInput()); err != nil {
		t.Fatalf("Create with no stream subscribers: %v", err)
	}
}
