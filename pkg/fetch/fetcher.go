package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	logging "github.com/KonishchevDmitry/go-easy-logging"

	"github.com/KonishchevDmitry/newsfeedd/internal/util"
	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
)

const maxBodySize = 32 * 1024 * 1024

type Request struct {
	URL         string
	Encoding    string
	UseProxy    bool
	LogWarnings bool
}

type Result struct {
	Title string
	Items []feed.Item
}

// Parser fetches and parses a source. Implementations must be safe for concurrent use.
type Parser interface {
	Parse(ctx context.Context, request Request) (*Result, error)
}

type Fetcher struct {
	options options
	direct  *http.Client
	proxied *http.Client
}

var _ Parser = &Fetcher{}

func NewFetcher(opts ...Option) *Fetcher {
	options := getOptions(opts)

	proxy := http.ProxyFromEnvironment
	if proxyURL, ok := options.proxy.Get(); ok {
		proxy = http.ProxyURL(proxyURL)
	}

	return &Fetcher{
		options: options,
		direct:  newClient(nil),
		proxied: newClient(proxy),
	}
}

func newClient(proxy func(*http.Request) (*url.URL, error)) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy
	return &http.Client{Transport: transport}
}

func (f *Fetcher) Parse(ctx context.Context, request Request) (_ *Result, retErr error) {
	defer func() {
		if retErr != nil {
			retErr = fmt.Errorf("failed to fetch %s: %w", request.URL, retErr)
		}
	}()

	data, err := f.fetch(ctx, request)
	if err != nil {
		return nil, err
	}

	return Parse(ctx, data, request)
}

func (f *Fetcher) fetch(ctx context.Context, request Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.options.timeout)
	defer cancel()

	logging.L(ctx).Debugf("Fetching %s (use proxy = %v)...", request.URL, request.UseProxy)

	client := f.direct
	if request.UseProxy {
		client = f.proxied
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, request.URL, nil)
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Add("User-Agent", f.options.userAgent)

	startTime := time.Now()
	defer func() {
		if observer, ok := getDurationObserver(ctx).Get(); ok {
			observer.Observe(time.Since(startTime).Seconds())
		}
	}()

	response, err := client.Do(httpRequest)
	if err != nil {
		return nil, util.MakeTemporaryError(err)
	}
	defer func() {
		if err := response.Body.Close(); err != nil {
			logging.L(ctx).Errorf("Failed to close HTTP client body: %s.", err)
		}
	}()

	if response.StatusCode != http.StatusOK {
		return nil, makeStatusError(response)
	}

	data, err := io.ReadAll(io.LimitReader(response.Body, maxBodySize+1))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			err = util.MakeTemporaryError(err)
		}
		return nil, err
	} else if len(data) > maxBodySize {
		return nil, fmt.Errorf("the document is too big (more than %d bytes)", maxBodySize)
	}

	return data, nil
}
