// Package factorycore is the HTTP client for the factory-core service. The
// ingestion pipeline uses it for the factory existence check and the camera
// coverage query.
package factorycore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"factory-digital-twin/shared/config"
	"factory-digital-twin/shared/metricsx"
)

var ErrUnavailable = errors.New("factory-core unavailable")

type Client struct {
	baseURL  string
	retryMax int
	http     *http.Client
	breaker  *circuitBreaker
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type CameraMatch struct {
	Camera struct {
		ID uuid.UUID `json:"id"`
	} `json:"camera"`
	Distance float64 `json:"distance"`
}

func New(cfg config.Config) (*Client, error) {
	if cfg.FactoryCoreURL == "" {
		return nil, errors.New("FACTORY_CORE_URL is required")
	}
	timeout := time.Duration(cfg.FactoryLookupMS) * time.Millisecond
	return &Client{
		baseURL:  cfg.FactoryCoreURL,
		retryMax: cfg.SpatialMatchRetryMax,
		http:     &http.Client{Timeout: timeout},
		breaker:  newCircuitBreaker(5, 30*time.Second),
	}, nil
}

// FactoryExists reports whether factory-core knows the factory. Any transport
// failure or non-200 answer counts as "does not exist": creation must not
// proceed on an unverifiable reference.
func (c *Client) FactoryExists(ctx context.Context, factoryID uuid.UUID) (bool, error) {
	if c == nil || c.http == nil {
		return false, errors.New("factory-core client not initialized")
	}
	if c.breaker.Open() {
		return false, ErrUnavailable
	}

	ctx, span := otel.Tracer("factorycore").Start(ctx, "factorycore.factory_exists")
	span.SetAttributes(attribute.String("factory.id", factoryID.String()))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/factories/"+factoryID.String(), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.Fail()
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.breaker.Fail()
		return false, ErrUnavailable
	}
	c.breaker.Success()
	return resp.StatusCode == http.StatusOK, nil
}

// CoveringCameras queries which cameras see the point. Retries transport and
// 5xx failures up to the configured attempt budget.
func (c *Client) CoveringCameras(ctx context.Context, factoryID uuid.UUID, position Position, maxDistance float64) ([]CameraMatch, error) {
	if c == nil || c.http == nil {
		return nil, errors.New("factory-core client not initialized")
	}
	if c.breaker.Open() {
		return nil, ErrUnavailable
	}

	ctx, span := otel.Tracer("factorycore").Start(ctx, "factorycore.covering_cameras")
	span.SetAttributes(attribute.String("factory.id", factoryID.String()))
	defer span.End()

	body, err := json.Marshal(position)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("factory_id", factoryID.String())
	query.Set("max_distance", strconv.FormatFloat(maxDistance, 'f', -1, 64))
	endpoint := c.baseURL + "/api/v1/spatial/covering-cameras?" + query.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			c.breaker.Fail()
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = ErrUnavailable
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			metricsx.IncCameraMatchFailures()
			return nil, fmt.Errorf("covering-cameras returned status %d", resp.StatusCode)
		}

		var matches []CameraMatch
		err = json.NewDecoder(resp.Body).Decode(&matches)
		resp.Body.Close()
		if err != nil {
			c.breaker.Fail()
			metricsx.IncCameraMatchFailures()
			return nil, err
		}
		c.breaker.Success()
		return matches, nil
	}
	if lastErr == nil {
		lastErr = ErrUnavailable
	}
	metricsx.IncCameraMatchFailures()
	return nil, lastErr
}

// CoveringCameraIDs is the narrow form the ingestion pipeline consumes.
func (c *Client) CoveringCameraIDs(ctx context.Context, factoryID uuid.UUID, x, y, z float64, maxDistance float64) ([]uuid.UUID, error) {
	matches, err := c.CoveringCameras(ctx, factoryID, Position{X: x, Y: y, Z: z}, maxDistance)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Camera.ID)
	}
	return ids, nil
}

type circuitBreaker struct {
	mu            sync.Mutex
	failures      int
	openUntil     time.Time
	threshold     int
	resetDuration time.Duration
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetDuration: reset}
}

func (b *circuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return false
	}
	if time.Now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.resetDuration)
	}
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}
