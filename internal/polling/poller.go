package polling

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	"github.com/samber/mo"

	"github.com/KonishchevDmitry/newsfeedd/internal/util"
	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/fetch"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
)

// Listener receives poller events. Fetch results are reported from poller goroutines with the context the poller was
// started with, and repeated registrations call ItemsUpdated from the registering goroutine, so calls may overlap even
// for a single source.
type Listener interface {
	ItemsUpdated(ctx context.Context, key source.Key)
	FetchFailed(ctx context.Context, key source.Key, kind feed.ErrorKind, err error)
}

// Poller owns a single source: its reload timer, the in-flight fetch and the cache of the last successfully fetched
// items.
type Poller struct {
	key        source.Key
	descriptor source.Descriptor
	parser     fetch.Parser
	listener   Listener
	metrics    observers

	started   atomic.Bool
	inFlight  atomic.Bool
	stopOnce  sync.Once
	stopped   chan struct{}
	waitGroup sync.WaitGroup

	lock      util.GuardedLock
	interval  time.Duration
	useProxy  bool
	items     []feed.Item
	lastError mo.Option[feed.ErrorKind]
}

func newPoller(
	key source.Key, descriptor source.Descriptor, parser fetch.Parser, listener Listener, metrics observers,
) *Poller {
	return &Poller{
		key:        key,
		descriptor: descriptor,
		parser:     parser,
		listener:   listener,
		metrics:    metrics,

		stopped: make(chan struct{}),

		interval: descriptor.ReloadInterval,
		useProxy: descriptor.ShouldUseProxy(),
	}
}

func (p *Poller) Key() source.Key {
	return p.key
}

// Start immediately fetches the source and schedules its reloading. The context must outlive the poller. Returns false
// if the poller has already been started.
func (p *Poller) Start(ctx context.Context) bool {
	if !p.started.CompareAndSwap(false, true) {
		return false
	}

	p.waitGroup.Go(func() {
		p.daemon(ctx)
	})

	return true
}

// Stop stops the reload timer and waits for the in-flight fetch to complete.
func (p *Poller) Stop(ctx context.Context) {
	logging.L(ctx).Infof("Stopping %s poller...", p.key)
	p.stopOnce.Do(func() {
		close(p.stopped)
	})
	p.waitGroup.Wait()
	logging.L(ctx).Infof("%s poller has stopped.", p.key)
}

// SetReloadInterval changes the reload period. The timer is rescheduled on its next tick.
func (p *Poller) SetReloadInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}

	lock := p.lock.Lock()
	defer lock.Unlock()
	p.interval = interval
}

func (p *Poller) Interval() time.Duration {
	lock := p.lock.RLock()
	defer lock.Unlock()
	return p.interval
}

func (p *Poller) SetUseProxy(useProxy bool) {
	lock := p.lock.Lock()
	defer lock.Unlock()
	p.useProxy = useProxy
}

func (p *Poller) UseProxy() bool {
	lock := p.lock.RLock()
	defer lock.Unlock()
	return p.useProxy
}

// Items returns the last successfully fetched items, most-recent-first. It's never nil.
func (p *Poller) Items() []feed.Item {
	lock := p.lock.RLock()
	defer lock.Unlock()

	items := make([]feed.Item, len(p.items))
	copy(items, p.items)
	return items
}

func (p *Poller) LastError() mo.Option[feed.ErrorKind] {
	lock := p.lock.RLock()
	defer lock.Unlock()
	return p.lastError
}

// RefreshSubscribers notifies the listener about the current items without fetching the source. It's called on the
// caller's goroutine with its context and doesn't wait for the in-flight fetch.
func (p *Poller) RefreshSubscribers(ctx context.Context) {
	p.listener.ItemsUpdated(ctx, p.key)
}

func (p *Poller) daemon(ctx context.Context) {
	interval := p.Interval()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.trigger(ctx)

	for {
		select {
		case <-ticker.C:
			if current := p.Interval(); current != interval {
				logging.L(ctx).Debugf("Changing %s reload interval: %s -> %s.", p.key, interval, current)
				interval = current
				ticker.Reset(interval)
			}
			p.trigger(ctx)

		case <-p.stopped:
			return

		case <-ctx.Done():
			return
		}
	}
}

// trigger starts a new fetch cycle unless the previous one is still in progress.
func (p *Poller) trigger(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		logging.L(ctx).Warnf("%s is still being fetched. Skipping the update.", p.key)
		p.metrics.sourceStatus.WithLabelValues(statusSkipped).Inc()
		return false
	}

	p.waitGroup.Go(func() {
		defer p.inFlight.Store(false)
		p.cycle(ctx)
	})

	return true
}

func (p *Poller) cycle(ctx context.Context) {
	ctx = fetch.WithContext(ctx, p.metrics.fetchDuration)
	logging.L(ctx).Infof("Fetching %s...", p.key)

	request := fetch.Request{
		URL:         p.descriptor.Address,
		Encoding:    p.descriptor.Encoding,
		UseProxy:    p.UseProxy(),
		LogWarnings: p.descriptor.LogWarnings,
	}

	var panicErr error
	startTime := time.Now()
	result, err := func() (*fetch.Result, error) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				panicErr = fmt.Errorf("feed parser has panicked: %v\n%s", err, bytes.TrimRight(stack, "\n"))
			}
		}()
		return p.parser.Parse(ctx, request)
	}()
	p.metrics.cycleDuration.Observe(time.Since(startTime).Seconds())

	if panicErr != nil {
		logging.L(ctx).Errorf("Failed to fetch %s: %s", p.key, panicErr)
		p.metrics.sourceStatus.WithLabelValues(statusPanic).Inc()
		p.fail(ctx, feed.UnknownFetchError, panicErr)
		return
	} else if err != nil {
		kind := fetch.Classify(err)
		if util.IsTemporaryError(err) {
			logging.L(ctx).Warnf("Failed to fetch %s (%s): %s.", p.key, kind, err)
			p.metrics.sourceStatus.WithLabelValues(statusUnavailable).Inc()
		} else {
			logging.L(ctx).Errorf("Failed to fetch %s (%s): %s.", p.key, kind, err)
			p.metrics.sourceStatus.WithLabelValues(statusError).Inc()
		}
		p.fail(ctx, kind, err)
		return
	}

	items := p.prepare(result)
	logging.L(ctx).Infof("%s fetched: %d items.", p.key, len(items))

	lock := p.lock.Lock()
	p.items = items
	p.lastError = mo.None[feed.ErrorKind]()
	lock.Unlock()

	p.metrics.sourceStatus.WithLabelValues(statusSuccess).Inc()
	p.metrics.sourceTime.SetToCurrentTime()
	p.listener.ItemsUpdated(ctx, p.key)
}

func (p *Poller) fail(ctx context.Context, kind feed.ErrorKind, err error) {
	lock := p.lock.Lock()
	p.lastError = mo.Some(kind)
	lock.Unlock()

	p.listener.FetchFailed(ctx, p.key, kind, err)
}

func (p *Poller) prepare(result *fetch.Result) []feed.Item {
	sourceTitle := p.descriptor.Title
	if sourceTitle == "" {
		sourceTitle = result.Title
	}

	items := slices.Clone(result.Items)
	for index := range items {
		items[index].SourceTitle = sourceTitle
	}
	feed.SortItems(items)

	return items
}
