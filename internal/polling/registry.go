package polling

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/KonishchevDmitry/newsfeedd/internal/util"
	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/fetch"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
)

// Registry maps source keys to their pollers. At most one poller exists per key.
type Registry struct {
	metrics

	parser          fetch.Parser
	listener        Listener
	defaultInterval time.Duration

	lock    util.GuardedLock
	pollers map[source.Key]*Poller
}

var _ prometheus.Collector = &Registry{}

func New(parser fetch.Parser, listener Listener, defaultInterval time.Duration) *Registry {
	if defaultInterval <= 0 {
		defaultInterval = source.DefaultReloadInterval
	}

	return &Registry{
		metrics: makeMetrics(),

		parser:          parser,
		listener:        listener,
		defaultInterval: defaultInterval,

		pollers: make(map[source.Key]*Poller),
	}
}

// Register starts polling of a new source or reconfigures the existing poller and makes it republish its items.
// A malformed address is rejected before any state is touched.
func (r *Registry) Register(ctx context.Context, descriptor source.Descriptor) (*Poller, error) {
	key, err := source.Normalize(descriptor.Address)
	if err != nil {
		return nil, err
	}
	descriptor = descriptor.WithDefaults(r.defaultInterval)

	lock := r.lock.Lock()
	defer lock.UnlockIfLocked()

	if poller, ok := r.pollers[key]; ok {
		lock.Unlock()

		logging.L(ctx).Debugf("%s is already registered. Refreshing its subscribers.", key)
		poller.SetReloadInterval(descriptor.ReloadInterval)
		poller.SetUseProxy(descriptor.ShouldUseProxy())
		poller.RefreshSubscribers(ctx)

		return poller, nil
	}

	poller := newPoller(key, descriptor, r.parser, r.listener, r.metrics.observers(key.String()))
	r.pollers[key] = poller
	r.sources.Set(float64(len(r.pollers)))
	lock.Unlock()

	logging.L(ctx).Infof("Registered %s (reload interval: %s).", key, descriptor.ReloadInterval)
	poller.Start(ctx)

	return poller, nil
}

func (r *Registry) Get(key source.Key) (*Poller, bool) {
	lock := r.lock.RLock()
	defer lock.Unlock()

	poller, ok := r.pollers[key]
	return poller, ok
}

func (r *Registry) Len() int {
	lock := r.lock.RLock()
	defer lock.Unlock()
	return len(r.pollers)
}

func (r *Registry) Keys() []source.Key {
	lock := r.lock.RLock()
	defer lock.Unlock()
	return slices.Sorted(maps.Keys(r.pollers))
}

// Snapshot returns the current items of every registered source. Sources which haven't been fetched successfully yet
// are present with no items.
func (r *Registry) Snapshot() feed.Snapshot {
	lock := r.lock.RLock()
	pollers := slices.Collect(maps.Values(r.pollers))
	lock.Unlock()

	snapshot := make(feed.Snapshot, len(pollers))
	for _, poller := range pollers {
		snapshot[poller.Key()] = poller.Items()
	}
	return snapshot
}

func (r *Registry) Stop(ctx context.Context) {
	lock := r.lock.RLock()
	pollers := slices.Collect(maps.Values(r.pollers))
	lock.Unlock()

	logging.L(ctx).Infof("Stopping %d pollers...", len(pollers))

	var waitGroup sync.WaitGroup
	for _, poller := range pollers {
		waitGroup.Go(func() {
			poller.Stop(ctx)
		})
	}
	waitGroup.Wait()

	logging.L(ctx).Info("All pollers have stopped.")
}
