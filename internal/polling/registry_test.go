package polling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/mo"
	"github.com/stretchr/testify/require"

	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/fetch"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
	"github.com/KonishchevDmitry/newsfeedd/pkg/test/testutil"
)

type fakeResult struct {
	result *fetch.Result
	err    error
	panic  bool
}

type fakeParser struct {
	calls    atomic.Int32
	requests chan fetch.Request
	results  chan fakeResult
}

func newFakeParser() *fakeParser {
	return &fakeParser{
		requests: make(chan fetch.Request, 100),
		results:  make(chan fakeResult),
	}
}

func (p *fakeParser) Parse(ctx context.Context, request fetch.Request) (*fetch.Result, error) {
	p.calls.Add(1)
	p.requests <- request

	select {
	case result := <-p.results:
		if result.panic {
			panic("something went wrong")
		}
		return result.result, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *fakeParser) reply(t *testing.T, result fakeResult) {
	t.Helper()

	select {
	case p.results <- result:
	case <-time.After(testutil.WaitTimeout):
		t.Fatal("Timed out waiting for a fetch.")
	}
}

type failure struct {
	key  source.Key
	kind feed.ErrorKind
	err  error
}

type fakeListener struct {
	updates  chan source.Key
	failures chan failure
}

func newFakeListener() *fakeListener {
	return &fakeListener{
		updates:  make(chan source.Key, 100),
		failures: make(chan failure, 100),
	}
}

func (l *fakeListener) ItemsUpdated(ctx context.Context, key source.Key) {
	l.updates <- key
}

func (l *fakeListener) FetchFailed(ctx context.Context, key source.Key, kind feed.ErrorKind, err error) {
	l.failures <- failure{key: key, kind: kind, err: err}
}

func newTestRegistry(t *testing.T) (context.Context, *Registry, *fakeParser, *fakeListener) {
	ctx := testutil.Context(t)
	parser, listener := newFakeParser(), newFakeListener()

	registry := New(parser, listener, time.Hour)
	t.Cleanup(func() {
		registry.Stop(ctx)
	})

	return ctx, registry, parser, listener
}

func date(day int) mo.Option[time.Time] {
	return mo.Some(time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC))
}

func TestRegisterSameAddress(t *testing.T) {
	t.Parallel()

	ctx, registry, parser, listener := newTestRegistry(t)
	const address = "https://example.com/rss.xml"

	first, err := registry.Register(ctx, source.Descriptor{Address: address})
	require.NoError(t, err)

	request := testutil.Receive(t, parser.requests)
	require.Equal(t, fetch.Request{URL: address, Encoding: source.DefaultEncoding, UseProxy: true}, request)

	second, err := registry.Register(ctx, source.Descriptor{Address: address, ReloadInterval: 2 * time.Hour})
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, registry.Len())
	require.Equal(t, 2*time.Hour, first.Interval())

	// The repeated registration only republishes the items
	require.Equal(t, source.Key(address), testutil.Receive(t, listener.updates))

	parser.reply(t, fakeResult{result: &fetch.Result{Title: "Feed"}})
	require.Equal(t, source.Key(address), testutil.Receive(t, listener.updates))
	require.EqualValues(t, 1, parser.calls.Load())
	require.EqualValues(t, 1, promtestutil.ToFloat64(registry.sources))
}

type contextKey struct{}

type contextListener struct {
	fakeListener
	contexts chan any
}

func (l *contextListener) ItemsUpdated(ctx context.Context, key source.Key) {
	l.contexts <- ctx.Value(contextKey{})
	l.fakeListener.ItemsUpdated(ctx, key)
}

func TestRefreshDuringFetch(t *testing.T) {
	t.Parallel()

	ctx := testutil.Context(t)
	parser := newFakeParser()
	listener := &contextListener{fakeListener: *newFakeListener(), contexts: make(chan any, 100)}

	registry := New(parser, listener, time.Hour)
	t.Cleanup(func() {
		registry.Stop(ctx)
	})

	descriptor := source.Descriptor{Address: "https://example.com/rss.xml"}
	_, err := registry.Register(context.WithValue(ctx, contextKey{}, "start"), descriptor)
	require.NoError(t, err)
	testutil.Receive(t, parser.requests)

	// The fetch is still in flight: the refresh is delivered right away with the registering context
	_, err = registry.Register(context.WithValue(ctx, contextKey{}, "refresh"), descriptor)
	require.NoError(t, err)
	require.Equal(t, "refresh", testutil.Receive(t, listener.contexts))

	parser.reply(t, fakeResult{result: &fetch.Result{}})
	require.Equal(t, "start", testutil.Receive(t, listener.contexts))
}

func TestRegisterDistinctAddresses(t *testing.T) {
	t.Parallel()

	ctx, registry, _, _ := newTestRegistry(t)

	for _, address := range []string{
		"https://example.com/rss.xml",
		"https://example.com/rss.xml/",
		"https://EXAMPLE.com/rss.xml",
	} {
		_, err := registry.Register(ctx, source.Descriptor{Address: address})
		require.NoError(t, err)
	}

	require.Equal(t, 3, registry.Len())
	require.Equal(t, []source.Key{
		"https://EXAMPLE.com/rss.xml",
		"https://example.com/rss.xml",
		"https://example.com/rss.xml/",
	}, registry.Keys())
}

func TestRegisterMalformed(t *testing.T) {
	t.Parallel()

	ctx, registry, parser, listener := newTestRegistry(t)

	for _, address := range []string{"", "not a url", "example.com/rss.xml", "http://"} {
		poller, err := registry.Register(ctx, source.Descriptor{Address: address})
		require.ErrorIs(t, err, source.ErrMalformed, address)
		require.Nil(t, poller)
	}

	require.Equal(t, 0, registry.Len())
	require.Empty(t, registry.Snapshot())
	testutil.NoReceive(t, parser.requests, 50*time.Millisecond)
	testutil.NoReceive(t, listener.updates, 0)
}

func TestItemsOrderAndSourceTitle(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		title    string
		expected string
	}{
		{"feed-title", "", "Feed title"},
		{"custom-title", "Custom title", "Custom title"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			ctx, registry, parser, listener := newTestRegistry(t)

			poller, err := registry.Register(ctx, source.Descriptor{
				Address: "https://example.com/rss.xml",
				Title:   testCase.title,
			})
			require.NoError(t, err)

			testutil.Receive(t, parser.requests)
			parser.reply(t, fakeResult{result: &fetch.Result{
				Title: "Feed title",
				Items: []feed.Item{
					{Title: "2", PublishedAt: date(2)},
					{Title: "1", PublishedAt: date(1)},
					{Title: "undated"},
					{Title: "3", PublishedAt: date(3)},
				},
			}})
			testutil.Receive(t, listener.updates)

			var titles []string
			for _, item := range poller.Items() {
				titles = append(titles, item.Title)
				require.Equal(t, testCase.expected, item.SourceTitle)
			}
			require.Equal(t, []string{"3", "2", "1", "undated"}, titles)
			require.True(t, poller.LastError().IsAbsent())
		})
	}
}

func TestStaleItemsOnError(t *testing.T) {
	t.Parallel()

	ctx, registry, parser, listener := newTestRegistry(t)
	key := source.Key("https://example.com/rss.xml")

	poller, err := registry.Register(ctx, source.Descriptor{Address: key.String(), ReloadInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	items := []feed.Item{{Title: "Item", URL: "https://example.com/item", PublishedAt: date(1)}}

	testutil.Receive(t, parser.requests)
	parser.reply(t, fakeResult{result: &fetch.Result{Title: "Feed", Items: items}})
	require.Equal(t, key, testutil.Receive(t, listener.updates))

	testutil.Receive(t, parser.requests)
	parser.reply(t, fakeResult{err: &fetch.StatusError{StatusCode: 503, Status: "503 Service Unavailable"}})

	failure := testutil.Receive(t, listener.failures)
	require.Equal(t, key, failure.key)
	require.Equal(t, feed.ServerError, failure.kind)
	require.Error(t, failure.err)

	require.Equal(t, mo.Some(feed.ServerError), poller.LastError())
	require.Len(t, poller.Items(), 1)
	require.Equal(t, "Item", poller.Items()[0].Title)
	require.Equal(t, "Feed", poller.Items()[0].SourceTitle)
	require.EqualValues(t, 1, promtestutil.ToFloat64(registry.sourceStatus.WithLabelValues(key.String(), statusError)))
}

func TestFailureBeforeFirstSuccess(t *testing.T) {
	t.Parallel()

	ctx, registry, parser, listener := newTestRegistry(t)
	key := source.Key("https://example.com/rss.xml")

	_, err := registry.Register(ctx, source.Descriptor{Address: key.String()})
	require.NoError(t, err)

	testutil.Receive(t, parser.requests)
	parser.reply(t, fakeResult{err: errors.New("some error")})

	failure := testutil.Receive(t, listener.failures)
	require.Equal(t, feed.UnknownFetchError, failure.kind)
	testutil.NoReceive(t, listener.failures, 50*time.Millisecond)

	snapshot := registry.Snapshot()
	require.Contains(t, snapshot, key)
	require.Empty(t, snapshot[key])
}

func TestParserPanic(t *testing.T) {
	t.Parallel()

	ctx, registry, parser, listener := newTestRegistry(t)
	key := source.Key("https://example.com/rss.xml")

	_, err := registry.Register(ctx, source.Descriptor{Address: key.String()})
	require.NoError(t, err)

	testutil.Receive(t, parser.requests)
	parser.reply(t, fakeResult{panic: true})

	failure := testutil.Receive(t, listener.failures)
	require.Equal(t, key, failure.key)
	require.Equal(t, feed.UnknownFetchError, failure.kind)
	require.ErrorContains(t, failure.err, "something went wrong")
	require.EqualValues(t, 1, promtestutil.ToFloat64(registry.sourceStatus.WithLabelValues(key.String(), statusPanic)))
}

func TestPeriodicReload(t *testing.T) {
	t.Parallel()

	ctx, registry, parser, listener := newTestRegistry(t)

	_, err := registry.Register(ctx, source.Descriptor{
		Address:        "https://example.com/rss.xml",
		ReloadInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	for range 3 {
		testutil.Receive(t, parser.requests)
		parser.reply(t, fakeResult{result: &fetch.Result{}})
		testutil.Receive(t, listener.updates)
	}
}

func TestReloadIntervalChange(t *testing.T) {
	t.Parallel()

	ctx, registry, parser, listener := newTestRegistry(t)
	descriptor := source.Descriptor{Address: "https://example.com/rss.xml", ReloadInterval: 20 * time.Millisecond}

	poller, err := registry.Register(ctx, descriptor)
	require.NoError(t, err)

	testutil.Receive(t, parser.requests)
	parser.reply(t, fakeResult{result: &fetch.Result{}})
	testutil.Receive(t, listener.updates)

	descriptor.ReloadInterval = time.Hour
	_, err = registry.Register(ctx, descriptor)
	require.NoError(t, err)
	require.Equal(t, time.Hour, poller.Interval())

	// A tick scheduled with the old interval may still fire before the timer is rescheduled
	var fetches int
	deadline := time.After(150 * time.Millisecond)
	for drained := false; !drained; {
		select {
		case <-parser.requests:
			fetches++
			parser.reply(t, fakeResult{result: &fetch.Result{}})
		case <-deadline:
			drained = true
		}
	}
	require.LessOrEqual(t, fetches, 2)

	testutil.NoReceive(t, parser.requests, 200*time.Millisecond)
}

func TestNoConcurrentFetches(t *testing.T) {
	t.Parallel()

	ctx, registry, parser, listener := newTestRegistry(t)
	key := source.Key("https://example.com/rss.xml")

	_, err := registry.Register(ctx, source.Descriptor{Address: key.String(), ReloadInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	testutil.Receive(t, parser.requests)
	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 1, parser.calls.Load())

	skipped := promtestutil.ToFloat64(registry.sourceStatus.WithLabelValues(key.String(), statusSkipped))
	require.Greater(t, skipped, float64(0))

	parser.reply(t, fakeResult{result: &fetch.Result{}})
	testutil.Receive(t, listener.updates)
}

func TestReconfigureProxy(t *testing.T) {
	t.Parallel()

	ctx, registry, parser, listener := newTestRegistry(t)
	const address = "https://example.com/rss.xml"

	poller, err := registry.Register(ctx, source.Descriptor{Address: address, ReloadInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, poller.UseProxy())

	require.True(t, testutil.Receive(t, parser.requests).UseProxy)

	_, err = registry.Register(ctx, source.Descriptor{
		Address:        address,
		ReloadInterval: 20 * time.Millisecond,
		UseProxy:       mo.Some(false),
	})
	require.NoError(t, err)
	require.False(t, poller.UseProxy())
	testutil.Receive(t, listener.updates)

	parser.reply(t, fakeResult{result: &fetch.Result{}})
	testutil.Receive(t, listener.updates)

	require.False(t, testutil.Receive(t, parser.requests).UseProxy)
	parser.reply(t, fakeResult{result: &fetch.Result{}})
}
