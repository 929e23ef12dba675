package fetch

import (
	"net/url"
	"time"

	"github.com/samber/mo"
)

const (
	DefaultTimeout   = time.Minute
	DefaultUserAgent = "github.com/KonishchevDmitry/newsfeedd"
)

type Option func(o *options)

type options struct {
	timeout   time.Duration
	userAgent string
	proxy     mo.Option[*url.URL]
}

func getOptions(opts []Option) options {
	options := options{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func Timeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

func UserAgent(userAgent string) Option {
	return func(o *options) {
		if userAgent != "" {
			o.userAgent = userAgent
		}
	}
}

// Proxy sets the proxy for sources which are allowed to use it. Without it such sources use the proxy from the
// environment (HTTP_PROXY, HTTPS_PROXY and NO_PROXY).
func Proxy(proxy *url.URL) Option {
	return func(o *options) {
		o.proxy = mo.Some(proxy)
	}
}
