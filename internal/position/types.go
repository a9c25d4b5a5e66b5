package position

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEndpointUnreachable is a single candidate's network or HTTP failure
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
	// ErrMalformedPayload is an unparsable body or one missing coordinates
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrAllEndpointsExhausted means no candidate produced a fix before the deadline
	ErrAllEndpointsExhausted = errors.New("all position endpoints exhausted")
)

// Fix is one authoritative reading. Never mutated once created.
type Fix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKmh   float64   `json:"speedKmh"`
	CapturedAt time.Time `json:"capturedAt"`
}

// rawReading mirrors the onboard API payload. Speed is in meters per second.
type rawReading struct {
	Latitude  *flexFloat `json:"latitude"`
	Longitude *flexFloat `json:"longitude"`
	Speed     *flexFloat `json:"speed"`
}

// flexFloat accepts both JSON numbers and numeric strings. An empty string
// decodes to NaN so it reads as absent rather than as zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = flexFloat(math.NaN())
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
