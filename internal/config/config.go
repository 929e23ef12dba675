package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/samber/mo"
	"gopkg.in/yaml.v3"

	"github.com/KonishchevDmitry/newsfeedd/internal/enrich"
	"github.com/KonishchevDmitry/newsfeedd/pkg/fetch"
	"github.com/KonishchevDmitry/newsfeedd/pkg/image"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
)

const (
	DefaultFeedsAddr   = "localhost:8080"
	DefaultMetricsAddr = "localhost:9101"
)

type Config struct {
	FeedsAddr      string        `yaml:"feeds_addr"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	Proxy          string        `yaml:"proxy"`
	UserAgent      string        `yaml:"user_agent"`
	Images         Images        `yaml:"images"`
	Feeds          []Feed        `yaml:"feeds"`
}

type Images struct {
	Enabled   bool          `yaml:"enabled"`
	Size      int           `yaml:"size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`
}

type Feed struct {
	URL            string        `yaml:"url"`
	Title          string        `yaml:"title"`
	Encoding       string        `yaml:"encoding"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
	UseProxy       *bool         `yaml:"use_proxy"`
	LogWarnings    bool          `yaml:"log_warnings"`
}

func Default() Config {
	return Config{
		FeedsAddr:      DefaultFeedsAddr,
		MetricsAddr:    DefaultMetricsAddr,
		ReloadInterval: source.DefaultReloadInterval,
		FetchTimeout:   fetch.DefaultTimeout,
		UserAgent:      fetch.DefaultUserAgent,
		Images: Images{
			Enabled:   true,
			Size:      image.DefaultQRSize,
			CacheTTL:  enrich.DefaultCacheTTL,
			CacheSize: enrich.DefaultCacheSize,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration file %q: %w", path, err)
	}

	return config, nil
}

// Parse parses the configuration. Unset options get their default values.
func Parse(data []byte) (*Config, error) {
	config := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.FeedsAddr == "" {
		return errors.New("feeds_addr must be set")
	} else if c.MetricsAddr == "" {
		return errors.New("metrics_addr must be set")
	}

	if c.ReloadInterval <= 0 {
		return errors.New("reload_interval must be positive")
	} else if c.FetchTimeout <= 0 {
		return errors.New("fetch_timeout must be positive")
	}

	if _, err := c.ProxyURL(); err != nil {
		return err
	}

	if c.Images.Size < 0 {
		return errors.New("images.size must not be negative")
	} else if c.Images.CacheTTL < 0 {
		return errors.New("images.cache_ttl must not be negative")
	} else if c.Images.CacheSize < 0 {
		return errors.New("images.cache_size must not be negative")
	}

	for index, feed := range c.Feeds {
		if _, err := source.Normalize(feed.URL); err != nil {
			return fmt.Errorf("feeds[%d]: %w", index, err)
		} else if feed.ReloadInterval < 0 {
			return fmt.Errorf("feeds[%d]: reload_interval must not be negative", index)
		}
	}

	return nil
}

func (c *Config) ProxyURL() (mo.Option[*url.URL], error) {
	if c.Proxy == "" {
		return mo.None[*url.URL](), nil
	}

	proxy, err := url.Parse(c.Proxy)
	if err != nil || proxy.Scheme == "" || proxy.Host == "" {
		return mo.None[*url.URL](), fmt.Errorf("invalid proxy URL: %q", c.Proxy)
	}

	return mo.Some(proxy), nil
}

// FetchOptions returns options of the feed fetcher.
func (c *Config) FetchOptions() []fetch.Option {
	options := []fetch.Option{
		fetch.Timeout(c.FetchTimeout),
		fetch.UserAgent(c.UserAgent),
	}

	if proxy, err := c.ProxyURL(); err == nil {
		if proxy, ok := proxy.Get(); ok {
			options = append(options, fetch.Proxy(proxy))
		}
	}

	return options
}

func (c *Config) EnrichOptions() enrich.Options {
	return enrich.Options{
		CacheTTL:  c.Images.CacheTTL,
		CacheSize: c.Images.CacheSize,
	}
}

func (f *Feed) Descriptor() source.Descriptor {
	descriptor := source.Descriptor{
		Address:        f.URL,
		Title:          f.Title,
		Encoding:       f.Encoding,
		ReloadInterval: f.ReloadInterval,
		LogWarnings:    f.LogWarnings,
	}
	if f.UseProxy != nil {
		descriptor.UseProxy = mo.Some(*f.UseProxy)
	}
	return descriptor
}
