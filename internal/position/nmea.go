package position

import (
	"fmt"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/mini-rodalies-3d/onboard/internal/geo"
)

const knotsToKmh = 1.852

// parseNMEA reads raw sentences as served by some onboard routers. A valid
// RMC wins since it carries speed; a GGA with a fix is the fallback.
func parseNMEA(text string, capturedAt time.Time) (Fix, error) {
	var fallback *Fix

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}

		switch sentence.DataType() {
		case nmea.TypeRMC:
			m := sentence.(nmea.RMC)
			if m.Validity != nmea.ValidRMC || !validCoordinate(m.Latitude, m.Longitude) {
				continue
			}
			return Fix{
				Latitude:   m.Latitude,
				Longitude:  m.Longitude,
				SpeedKmh:   geo.Round(m.Speed*knotsToKmh, 1),
				CapturedAt: capturedAt,
			}, nil
		case nmea.TypeGGA:
			m := sentence.(nmea.GGA)
			if fallback != nil || m.FixQuality == nmea.Invalid || !validCoordinate(m.Latitude, m.Longitude) {
				continue
			}
			fallback = &Fix{Latitude: m.Latitude, Longitude: m.Longitude, CapturedAt: capturedAt}
		}
	}

	if fallback != nil {
		return *fallback, nil
	}
	return Fix{}, fmt.Errorf("%w: no valid NMEA fix", ErrMalformedPayload)
}
