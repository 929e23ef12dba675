package engine

import (
	"context"
	"time"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"

	"github.com/KonishchevDmitry/newsfeedd/internal/bridge"
	"github.com/KonishchevDmitry/newsfeedd/internal/broadcast"
	"github.com/KonishchevDmitry/newsfeedd/internal/enrich"
	"github.com/KonishchevDmitry/newsfeedd/internal/polling"
	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/fetch"
	"github.com/KonishchevDmitry/newsfeedd/pkg/image"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
)

type Options struct {
	ReloadInterval time.Duration
	EnrichItems    bool
	Enrich         enrich.Options
	Sources        []source.Descriptor
}

// Engine serves bridge commands: it registers sources, publishes their snapshots and generates images on demand.
type Engine struct {
	bridge     *bridge.Bridge
	registry   *polling.Registry
	pipeline   *enrich.Pipeline
	aggregator *broadcast.Aggregator
	sources    []source.Descriptor
}

var (
	_ polling.Listener     = &Engine{}
	_ prometheus.Collector = &Engine{}
)

func New(options Options, parser fetch.Parser, generator image.Generator, bridge *bridge.Bridge) *Engine {
	engine := &Engine{
		bridge:   bridge,
		pipeline: enrich.New(generator, options.Enrich),
		sources:  options.Sources,
	}
	engine.registry = polling.New(parser, engine, options.ReloadInterval)

	var enricher broadcast.Enricher
	if options.EnrichItems {
		enricher = engine.pipeline
	}
	engine.aggregator = broadcast.New(engine.registry, enricher, bridge)

	return engine
}

// Run serves commands until the context is canceled. Pollers are stopped before it returns.
func (e *Engine) Run(ctx context.Context) {
	var waitGroup conc.WaitGroup
	defer waitGroup.Wait()

	waitGroup.Go(func() {
		e.aggregator.Run(ctx)
	})

	defer e.registry.Stop(ctx)

	for _, descriptor := range e.sources {
		e.register(ctx, descriptor)
	}

	for {
		select {
		case command := <-e.bridge.Commands():
			switch command := command.(type) {
			case bridge.RegisterSource:
				e.register(ctx, command.Descriptor)
			case bridge.RequestImage:
				waitGroup.Go(func() {
					e.generate(ctx, command.URL)
				})
			default:
				logging.L(ctx).Errorf("Got an unsupported %T command.", command)
			}

		case <-ctx.Done():
			logging.L(ctx).Info("Stopping the engine...")
			return
		}
	}
}

// Snapshot returns the current items of all registered sources.
func (e *Engine) Snapshot() feed.Snapshot {
	return e.registry.Snapshot()
}

func (e *Engine) ItemsUpdated(ctx context.Context, key source.Key) {
	e.aggregator.Notify()
}

func (e *Engine) FetchFailed(ctx context.Context, key source.Key, kind feed.ErrorKind, err error) {
	e.emit(ctx, bridge.SourceError{Source: key, Kind: kind})
}

func (e *Engine) register(ctx context.Context, descriptor source.Descriptor) {
	if _, err := e.registry.Register(ctx, descriptor); err != nil {
		logging.L(ctx).Errorf("Failed to register %q source: %s.", descriptor.Address, err)
		e.emit(ctx, bridge.SourceError{Source: source.Key(descriptor.Address), Kind: fetch.Classify(err)})
	}
}

func (e *Engine) generate(ctx context.Context, url string) {
	artifact, err := e.pipeline.Generate(ctx, url)
	if err != nil {
		return
	}
	e.emit(ctx, bridge.ImageReady{URL: url, Image: artifact})
}

func (e *Engine) emit(ctx context.Context, event bridge.Event) {
	if err := e.bridge.Emit(ctx, event); err != nil {
		logging.L(ctx).Debugf("%s event has been dropped: %s.", event.Notification(), err)
	}
}

func (e *Engine) Describe(descs chan<- *prometheus.Desc) {
	e.registry.Describe(descs)
	e.pipeline.Describe(descs)
	e.aggregator.Describe(descs)
}

func (e *Engine) Collect(metrics chan<- prometheus.Metric) {
	e.registry.Collect(metrics)
	e.pipeline.Collect(metrics)
	e.aggregator.Collect(metrics)
}
