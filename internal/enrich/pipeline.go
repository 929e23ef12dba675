package enrich

import (
	"context"
	"fmt"
	"time"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	"github.com/samber/mo"
	"github.com/sourcegraph/conc"

	"github.com/KonishchevDmitry/newsfeedd/pkg/cache"
	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/image"
)

const (
	DefaultCacheTTL  = 24 * time.Hour
	DefaultCacheSize = 10000
)

type Options struct {
	CacheTTL  time.Duration
	CacheSize int
}

// Pipeline attaches an image to every snapshot item. Generated images are cached by item URL.
type Pipeline struct {
	metrics
	generator image.Generator
	cache     *cache.Cache[image.Artifact]
}

func New(generator image.Generator, options Options) *Pipeline {
	if options.CacheTTL <= 0 {
		options.CacheTTL = DefaultCacheTTL
	}
	if options.CacheSize <= 0 {
		options.CacheSize = DefaultCacheSize
	}

	return &Pipeline{
		metrics:   makeMetrics(),
		generator: generator,
		cache:     cache.New[image.Artifact](options.CacheTTL, options.CacheSize),
	}
}

// Enrich returns a copy of the snapshot with images attached. It waits for all image requests to settle. Items which
// image couldn't be generated for are left without an image.
func (p *Pipeline) Enrich(ctx context.Context, snapshot feed.Snapshot) feed.Snapshot {
	enriched := snapshot.Clone()
	urls := make(map[string]struct{}, enriched.Len())

	var waitGroup conc.WaitGroup
	for key, items := range enriched {
		for index := range items {
			item := &items[index]
			if item.URL == "" {
				logging.L(ctx).Debugf("%s: %q has no URL. Skipping its image generation.", key, item.Title)
				continue
			}

			urls[item.URL] = struct{}{}
			waitGroup.Go(func() {
				if artifact, err := p.Generate(ctx, item.URL); err == nil {
					item.Image = mo.Some(artifact)
				}
			})
		}
	}

	if recovered := waitGroup.WaitAndRecover(); recovered != nil {
		p.images.WithLabelValues(statusPanic).Inc()
		logging.L(ctx).Errorf("Image generator has panicked: %s", recovered.String())
	}

	p.cache.Cleanup(ctx, urls)
	return enriched
}

// Generate returns an image for the specified URL, generating it if it's not cached yet.
func (p *Pipeline) Generate(ctx context.Context, url string) (image.Artifact, error) {
	artifact, err := p.cache.Cached(ctx, url, p.generate)
	if err != nil {
		logging.L(ctx).Errorf("Failed to generate an image for %s (%s): %s.", url, feed.ImageGenerationError, err)
		return "", fmt.Errorf("failed to generate an image for %s: %w", url, err)
	}
	return artifact, nil
}

func (p *Pipeline) generate(ctx context.Context, url string) (image.Artifact, error) {
	artifact, err := p.generator.Generate(ctx, url)
	if err != nil {
		p.images.WithLabelValues(statusError).Inc()
	} else {
		p.images.WithLabelValues(statusSuccess).Inc()
	}
	return artifact, err
}
