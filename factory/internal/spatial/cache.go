package spatial

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"factory-digital-twin/factory/internal/models"
	"factory-digital-twin/shared/broadcast"
	"factory-digital-twin/shared/cachex"
	"factory-digital-twin/shared/events"
	"factory-digital-twin/shared/logx"
)

// CachedSource caches the active camera set per factory in redis. Cache
// misses and redis failures both fall through to the underlying source, so a
// degraded cache never breaks a spatial query. Camera lifecycle events
// invalidate the affected factory.
type CachedSource struct {
	next   CameraSource
	cache  *cachex.Client
	ttl    time.Duration
	logger logx.Logger
}

func NewCachedSource(next CameraSource, cache *cachex.Client, ttl time.Duration, logger logx.Logger) *CachedSource {
	return &CachedSource{next: next, cache: cache, ttl: ttl, logger: logger}
}

func cameraSetKey(factoryID uuid.UUID) string {
	return fmt.Sprintf("spatial:cameras:%s", factoryID)
}

func (s *CachedSource) ListActiveByFactory(ctx context.Context, factoryID uuid.UUID) ([]models.CameraPlacement, error) {
	key := cameraSetKey(factoryID)

	var cached []models.CameraPlacement
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn(ctx, "camera_cache_read_failed", "camera cache read failed",
			slog.String("factory_id", factoryID.String()),
			slog.String("error", err.Error()),
		)
	} else if hit {
		return cached, nil
	}

	cameras, err := s.next.ListActiveByFactory(ctx, factoryID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetJSON(ctx, key, cameras, s.ttl); err != nil {
		s.logger.Warn(ctx, "camera_cache_write_failed", "camera cache write failed",
			slog.String("factory_id", factoryID.String()),
			slog.String("error", err.Error()),
		)
	}
	return cameras, nil
}

// WatchInvalidation drops cached camera sets as camera lifecycle events
// arrive on the hub. Blocks until ctx is cancelled.
func (s *CachedSource) WatchInvalidation(ctx context.Context, hub *broadcast.Hub) {
	sub := hub.Subscribe(events.ChannelCameras)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-sub.C():
			if !ok {
				return
			}
			var msg struct {
				Data struct {
					FactoryID uuid.UUID `json:"factory_id"`
				} `json:"data"`
			}
			if err := json.Unmarshal(d.Payload, &msg); err != nil || msg.Data.FactoryID == uuid.Nil {
				continue
			}
			s.Invalidate(ctx, msg.Data.FactoryID)
		}
	}
}

// Invalidate drops the cached camera set for one factory.
func (s *CachedSource) Invalidate(ctx context.Context, factoryID uuid.UUID) {
	if err := s.cache.Delete(ctx, cameraSetKey(factoryID)); err != nil {
		s.logger.Warn(ctx, "camera_cache_invalidate_failed", "camera cache invalidate failed",
			slog.String("factory_id", factoryID.String()),
			slog.String("error", err.Error()),
		)
	}
}
