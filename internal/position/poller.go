package position

import (
	"context"
	"log"
)

// FixSink receives every accepted fix
type FixSink interface {
	Update(fix Fix)
}

// FixHistory stores accepted fixes
type FixHistory interface {
	RecordFix(ctx context.Context, fix Fix, endpoint string) error
}

// Poller acquires a fix through the selector and feeds it to the sink
type Poller struct {
	selector *Selector
	sink     FixSink
	history  FixHistory
}

// NewPoller creates a new position poller. history may be nil.
func NewPoller(selector *Selector, sink FixSink, history FixHistory) *Poller {
	return &Poller{selector: selector, sink: sink, history: history}
}

// Poll runs one acquisition. On failure nothing is forwarded and the
// previous fix stays authoritative.
func (p *Poller) Poll(ctx context.Context) (Fix, error) {
	fix, endpoint, err := p.selector.ResolveAndFetch(ctx)
	if err != nil {
		return Fix{}, err
	}

	p.sink.Update(fix)
	log.Printf("Position: fix %.5f,%.5f at %.1f km/h from %s", fix.Latitude, fix.Longitude, fix.SpeedKmh, endpoint)

	if p.history != nil {
		if err := p.history.RecordFix(ctx, fix, endpoint); err != nil {
			log.Printf("Position: %v", err)
		}
	}
	return fix, nil
}
