package source

import (
	"time"

	"github.com/samber/mo"
)

const (
	DefaultEncoding       = "UTF-8"
	DefaultReloadInterval = 5 * time.Minute
)

type Descriptor struct {
	Address        string
	Title          string
	Encoding       string
	ReloadInterval time.Duration
	UseProxy       mo.Option[bool]
	LogWarnings    bool
}

// WithDefaults returns a copy of the descriptor with all unset fields filled in. defaultInterval is used when the
// descriptor doesn't specify its own reload interval; a non-positive value means DefaultReloadInterval.
func (d Descriptor) WithDefaults(defaultInterval time.Duration) Descriptor {
	if d.Encoding == "" {
		d.Encoding = DefaultEncoding
	}

	if d.ReloadInterval <= 0 {
		d.ReloadInterval = defaultInterval
		if d.ReloadInterval <= 0 {
			d.ReloadInterval = DefaultReloadInterval
		}
	}

	if d.UseProxy.IsAbsent() {
		d.UseProxy = mo.Some(true)
	}

	return d
}

func (d Descriptor) ShouldUseProxy() bool {
	return d.UseProxy.OrElse(true)
}
