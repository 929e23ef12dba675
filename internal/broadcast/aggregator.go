package broadcast

import (
	"context"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/KonishchevDmitry/newsfeedd/internal/bridge"
	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
)

type Snapshotter interface {
	Snapshot() feed.Snapshot
}

type Enricher interface {
	Enrich(ctx context.Context, snapshot feed.Snapshot) feed.Snapshot
}

type Emitter interface {
	Emit(ctx context.Context, event bridge.Event) error
}

// Aggregator publishes snapshots of all sources. Notifications arriving while a snapshot is being built collapse into
// a single subsequent snapshot.
type Aggregator struct {
	broadcasts prometheus.Counter

	snapshotter Snapshotter
	enricher    Enricher
	emitter     Emitter
	dirty       chan struct{}
}

var _ prometheus.Collector = &Aggregator{}

// New creates an aggregator. enricher may be nil, in which case snapshots are published as is.
func New(snapshotter Snapshotter, enricher Enricher, emitter Emitter) *Aggregator {
	return &Aggregator{
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsfeed_broadcasts",
			Help: "Number of published snapshots",
		}),

		snapshotter: snapshotter,
		enricher:    enricher,
		emitter:     emitter,
		dirty:       make(chan struct{}, 1),
	}
}

// Notify schedules a new snapshot. It never blocks.
func (a *Aggregator) Notify() {
	select {
	case a.dirty <- struct{}{}:
	default:
	}
}

func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case <-a.dirty:
			a.broadcast(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Aggregator) broadcast(ctx context.Context) {
	snapshot := a.snapshotter.Snapshot()
	if a.enricher != nil {
		snapshot = a.enricher.Enrich(ctx, snapshot)
	}

	if err := a.emitter.Emit(ctx, bridge.ItemsSnapshot{Feeds: snapshot}); err != nil {
		logging.L(ctx).Debugf("Snapshot hasn't been published: %s.", err)
		return
	}

	a.broadcasts.Inc()
	logging.L(ctx).Debugf("Published a snapshot of %d sources (%d items).", len(snapshot), snapshot.Len())
}

func (a *Aggregator) Describe(descs chan<- *prometheus.Desc) {
	a.broadcasts.Describe(descs)
}

func (a *Aggregator) Collect(metrics chan<- prometheus.Metric) {
	a.broadcasts.Collect(metrics)
}
