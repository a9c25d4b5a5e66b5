package enrichment

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mini-rodalies-3d/onboard/internal/overpass"
)

var (
	// saintRegex matches the standalone "St" abbreviation in French line names
	saintRegex = regexp.MustCompile(`\bSt\b`)
	// numberRegex extracts the first numeric run of a maxspeed tag ("160", "90 mph", "100;80")
	numberRegex = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// LineInfo describes the rail line(s) under the current fix
type LineInfo struct {
	Names       []string `json:"names"`
	MaxSpeedKmh *float64 `json:"maxSpeedKmh,omitempty"`
}

// Display joins the line names for presentation
func (l LineInfo) Display() string {
	return strings.Join(l.Names, ", ")
}

// LineDetector identifies rail ways within a few meters of the fix
type LineDetector struct {
	client  Querier
	gate    *Gate
	radiusM int
	timeout time.Duration
	now     func() time.Time
}

// NewLineDetector creates a detector searching radiusM meters around a fix
func NewLineDetector(client Querier, gate *Gate, radiusM int, timeout time.Duration) *LineDetector {
	return &LineDetector{
		client:  client,
		gate:    gate,
		radiusM: radiusM,
		timeout: timeout,
		now:     time.Now,
	}
}

// Detect returns the named lines near (lat, lon). It returns (nil, nil)
// when nothing named was found, so callers keep their previous LineInfo.
func (d *LineDetector) Detect(ctx context.Context, lat, lon float64) (*LineInfo, error) {
	if !d.gate.TryAcquire(lat, lon, d.now()) {
		return nil, ErrSkipped
	}
	defer d.gate.MarkFinished()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.Query(ctx, overpass.RailQuery(d.radiusM, lat, lon))
	if err != nil {
		return nil, fmt.Errorf("%w: line lookup: %w", ErrTransientFailure, err)
	}

	info := summarizeLines(resp.Elements)
	if info == nil {
		log.Printf("Line: no named rail within %d m", d.radiusM)
		return nil, nil
	}
	log.Printf("Line: %s", info.Display())
	return info, nil
}

// summarizeLines collects distinct corrected names and the highest speed limit
func summarizeLines(elements []overpass.Element) *LineInfo {
	seen := make(map[string]bool)
	var names []string
	var maxSpeed *float64

	for _, el := range elements {
		if el.Type != "way" || el.Tags == nil {
			continue
		}
		if name := correctLineName(strings.TrimSpace(el.Tags["name"])); name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		if speed, ok := parseMaxSpeed(el.Tags["maxspeed"]); ok {
			if maxSpeed == nil || speed > *maxSpeed {
				s := speed
				maxSpeed = &s
			}
		}
	}

	if len(names) == 0 {
		return nil
	}
	return &LineInfo{Names: names, MaxSpeedKmh: maxSpeed}
}

// correctLineName expands the "St" abbreviation to "Saint"
func correctLineName(name string) string {
	return saintRegex.ReplaceAllString(name, "Saint")
}

// parseMaxSpeed extracts the highest numeric speed in a tag, ignoring units
// and unparsable values. Multi-valued tags such as "80;160" yield 160.
func parseMaxSpeed(raw string) (float64, bool) {
	var best float64
	for _, match := range numberRegex.FindAllString(raw, -1) {
		v, err := strconv.ParseFloat(match, 64)
		if err != nil || v <= 0 {
			continue
		}
		best = max(best, v)
	}
	return best, best > 0
}
