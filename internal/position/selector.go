package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mini-rodalies-3d/onboard/internal/geo"
	"github.com/mini-rodalies-3d/onboard/internal/metrics"
)

// EndpointCacheKey is the single persisted key holding the last working endpoint
const EndpointCacheKey = "position_endpoint"

// maxBodyBytes caps how much of a position response is read
const maxBodyBytes = 64 << 10

// wrapperRegex matches a callback-style envelope such as `cb({...});` or `({...})`
var wrapperRegex = regexp.MustCompile(`(?s)^[\w$.]*\s*\((.*)\)[^)]*$`)

// EndpointStore persists the last working endpoint between runs
type EndpointStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Selector tries position endpoints in priority order and remembers the winner
type Selector struct {
	client    *http.Client
	endpoints []string
	store     EndpointStore
	timeout   time.Duration
	latency   *metrics.Latency
	now       func() time.Time
}

// NewSelector creates a selector over a fixed priority list. The first
// endpoint is the default used when nothing is cached. timeout bounds the
// whole failover attempt, not each candidate.
func NewSelector(endpoints []string, store EndpointStore, timeout time.Duration, latency *metrics.Latency) *Selector {
	return &Selector{
		client:    &http.Client{},
		endpoints: append([]string(nil), endpoints...),
		store:     store,
		timeout:   timeout,
		latency:   latency,
		now:       time.Now,
	}
}

// ResolveAndFetch returns the first structurally valid fix and the endpoint
// that produced it.
func (s *Selector) ResolveAndFetch(ctx context.Context) (Fix, string, error) {
	cached := s.cachedEndpoint(ctx)

	deadlineCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var errs []error
	for _, endpoint := range s.candidates(cached) {
		if deadlineCtx.Err() != nil {
			break
		}

		start := s.now()
		fix, err := s.fetch(deadlineCtx, endpoint)
		if err != nil {
			log.Printf("Position: failed to fetch data from %s: %v", endpoint, err)
			if s.latency != nil {
				s.latency.RecordFailure(endpoint)
			}
			errs = append(errs, err)
			continue
		}

		if s.latency != nil {
			s.latency.RecordSuccess(endpoint, s.now().Sub(start), fix.CapturedAt)
		}
		if endpoint != cached {
			if err := s.store.Set(ctx, EndpointCacheKey, endpoint); err != nil {
				log.Printf("Position: failed to persist endpoint %s: %v", endpoint, err)
			}
		}
		return fix, endpoint, nil
	}

	if err := deadlineCtx.Err(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Fix{}, "", ErrAllEndpointsExhausted
	}
	return Fix{}, "", fmt.Errorf("%w: %w", ErrAllEndpointsExhausted, errors.Join(errs...))
}

// cachedEndpoint returns the persisted endpoint if it passes a liveness
// probe. A failing probe clears the cache entry.
func (s *Selector) cachedEndpoint(ctx context.Context) string {
	cached, ok, err := s.store.Get(ctx, EndpointCacheKey)
	if err != nil {
		log.Printf("Position: failed to read cached endpoint: %v", err)
		return ""
	}
	if !ok || cached == "" {
		return ""
	}

	if err := s.probe(ctx, cached); err != nil {
		log.Printf("Position: cached endpoint %s failed probe, clearing: %v", cached, err)
		if err := s.store.Delete(ctx, EndpointCacheKey); err != nil {
			log.Printf("Position: failed to clear cached endpoint: %v", err)
		}
		return ""
	}
	return cached
}

// candidates builds [cached-or-default, remaining fixed endpoints...]
func (s *Selector) candidates(cached string) []string {
	if cached == "" {
		return s.endpoints
	}
	out := make([]string, 0, len(s.endpoints)+1)
	out = append(out, cached)
	for _, endpoint := range s.endpoints {
		if endpoint != cached {
			out = append(out, endpoint)
		}
	}
	return out
}

// probe issues a cheap request. Only transport failures count against it.
func (s *Selector) probe(ctx context.Context, endpoint string) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (s *Selector) fetch(ctx context.Context, endpoint string) (Fix, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Fix{}, fmt.Errorf("%w: %w", ErrEndpointUnreachable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Fix{}, fmt.Errorf("%w: %w", ErrEndpointUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Fix{}, fmt.Errorf("%w: status %d", ErrEndpointUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Fix{}, fmt.Errorf("%w: failed to read response: %w", ErrEndpointUnreachable, err)
	}

	return parseFix(body, s.now())
}

// parseFix strips any callback envelope, decodes the payload and converts
// speed from m/s to km/h rounded to one decimal. Raw NMEA is also accepted.
func parseFix(body []byte, capturedAt time.Time) (Fix, error) {
	if text := strings.TrimSpace(string(body)); strings.HasPrefix(text, "$") {
		return parseNMEA(text, capturedAt)
	}
	payload := stripWrapper(string(body))

	var raw rawReading
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Fix{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return Fix{}, fmt.Errorf("%w: missing latitude or longitude", ErrMalformedPayload)
	}

	lat := float64(*raw.Latitude)
	lon := float64(*raw.Longitude)
	if !validCoordinate(lat, lon) {
		return Fix{}, fmt.Errorf("%w: invalid coordinate (%f, %f)", ErrMalformedPayload, lat, lon)
	}

	var speedKmh float64
	if raw.Speed != nil {
		speed := float64(*raw.Speed)
		if !math.IsNaN(speed) && !math.IsInf(speed, 0) && speed > 0 {
			speedKmh = geo.Round(speed*3.6, 1)
		}
	}

	return Fix{
		Latitude:   lat,
		Longitude:  lon,
		SpeedKmh:   speedKmh,
		CapturedAt: capturedAt,
	}, nil
}

func stripWrapper(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") {
		return text
	}
	if m := wrapperRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// validCoordinate rejects out-of-range values and the 0/0 placeholder some
// portals report before they have a GPS lock
func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return lat != 0 || lon != 0
}
