package stats

import (
	"context"
	"time"
)

// Hit is one recorded access to a resource.
type Hit struct {
	App       string    `json:"app"`
	URI       string    `json:"uri"`
	ClientIP  string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

// Collector is the statistics service seen by the event read path. It is
// injected so tests can fake it; the HTTP implementation lives in client.go.
//
// The views counter on an event is cosmetic: a read increments it only when
// DistinctHitsSince reports no prior hit for (uri, client) inside the window.
type Collector interface {
	RecordHit(ctx context.Context, h Hit) error
	DistinctHitsSince(ctx context.Context, uri, clientIP string, since time.Time) (int, error)
}

// Noop satisfies Collector when no statistics endpoint is configured. Every
// read then looks like a first visit.
type Noop struct{}

func (Noop) RecordHit(context.Context, Hit) error { return nil }

func (Noop) DistinctHitsSince(context.Context, string, string, time.Time) (int, error) {
	return 0, nil
}
