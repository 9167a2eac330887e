package spatial

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"factory-digital-twin/factory/internal/geometry"
	"factory-digital-twin/factory/internal/models"
	"factory-digital-twin/shared/metricsx"
)

// CameraSource yields the active camera set of one factory. The repo
// implements it directly; the cached decorator wraps it.
type CameraSource interface {
	ListActiveByFactory(ctx context.Context, factoryID uuid.UUID) ([]models.CameraPlacement, error)
}

// Match pairs a camera with its distance from the query point.
type Match struct {
	Camera   models.CameraPlacement `json:"camera"`
	Distance float64                `json:"distance"`
}

// Service answers spatial queries with a linear scan over the factory's
// active cameras. Factory existence is the caller's concern, an unknown id
// simply yields no cameras. Camera counts per factory are small enough that
// a spatial index has not paid for itself yet.
type Service struct {
	source CameraSource
}

func NewService(source CameraSource) *Service {
	return &Service{source: source}
}

func cameraPosition(c models.CameraPlacement) geometry.Vec3 {
	return geometry.Vec3{X: c.PositionX, Y: c.PositionY, Z: c.PositionZ}
}

func cameraRotation(c models.CameraPlacement) geometry.Vec3 {
	return geometry.Vec3{X: c.RotationX, Y: c.RotationY, Z: c.RotationZ}
}

func sortByDistanceThenID(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return bytes.Compare(matches[i].Camera.ID[:], matches[j].Camera.ID[:]) < 0
	})
}

// NearestN returns up to limit cameras sorted ascending by distance to point,
// ties broken by camera id. A nil maxDistance means unbounded.
func (s *Service) NearestN(ctx context.Context, factoryID uuid.UUID, point geometry.Vec3, limit int, maxDistance *float64) ([]Match, error) {
	start := time.Now()
	defer func() { metricsx.ObserveSpatialQuery("nearest_n", time.Since(start)) }()

	cameras, err := s.source.ListActiveByFactory(ctx, factoryID)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(cameras))
	for _, c := range cameras {
		d := geometry.Distance(point, cameraPosition(c))
		if maxDistance != nil && d > *maxDistance {
			continue
		}
		matches = append(matches, Match{Camera: c, Distance: d})
	}
	sortByDistanceThenID(matches)

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// CoveringPoint returns the cameras whose field of view contains point within
// maxDistance, sorted ascending by distance with id tie-break.
func (s *Service) CoveringPoint(ctx context.Context, factoryID uuid.UUID, point geometry.Vec3, maxDistance float64) ([]Match, error) {
	start := time.Now()
	defer func() { metricsx.ObserveSpatialQuery("covering_point", time.Since(start)) }()

	cameras, err := s.source.ListActiveByFactory(ctx, factoryID)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0)
	for _, c := range cameras {
		if geometry.WithinFieldOfView(cameraPosition(c), cameraRotation(c), c.FOV, point, maxDistance) {
			matches = append(matches, Match{Camera: c, Distance: geometry.Distance(point, cameraPosition(c))})
		}
	}
	sortByDistanceThenID(matches)
	return matches, nil
}

// InBoundingBox returns the cameras positioned inside the inclusive box,
// sorted by camera id.
func (s *Service) InBoundingBox(ctx context.Context, factoryID uuid.UUID, min, max geometry.Vec3) ([]models.CameraPlacement, error) {
	start := time.Now()
	defer func() { metricsx.ObserveSpatialQuery("in_bounding_box", time.Since(start)) }()

	cameras, err := s.source.ListActiveByFactory(ctx, factoryID)
	if err != nil {
		return nil, err
	}

	inside := make([]models.CameraPlacement, 0)
	for _, c := range cameras {
		if geometry.BoxContains(min, max, cameraPosition(c)) {
			inside = append(inside, c)
		}
	}
	sort.Slice(inside, func(i, j int) bool {
		return bytes.Compare(inside[i].ID[:], inside[j].ID[:]) < 0
	})
	return inside, nil
}
