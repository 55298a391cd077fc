// package rirfetch locates, fetches and caches RIR delegated-stats source files
package rirfetch

// import
import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"paepcke.de/rir2cidr/logger"
)

// Source ...
type Source struct {
	Name      string   `yaml:"name"`       // registry short name [ripencc|arin|apnic|lacnic|afrinic]
	URL       string   `yaml:"url"`        // delegated-stats url, empty for local-only sources
	File      string   `yaml:"file"`       // local file [cache] location [.zst|.gz|plain]
	UserAgent string   `yaml:"user_agent"` // fetch user agent
	TrustCA   string   `yaml:"trust_ca"`   // optional pem file with root ca[s] trust anchor
	TLSKeyPin []string `yaml:"tls_keypin"` // optional tls cert sha2 keypin(s)
}

// Observer receives one call per prepared source
type Observer interface {
	ObserveFetch(source, status string)
}

// Options ...
type Options struct {
	Store   string          // cache directory
	Sources []Source        // nil -> DefaultSources(Store)
	MaxAge  time.Duration   // re-use cache files younger than this
	Offline bool            // never touch the network
	Force   bool            // refetch even if the cache is fresh
	Timeout time.Duration   // per source fetch timeout
	Workers int             // parallel fetches
	Log     *zerolog.Logger // nil -> no logging
	Observe Observer        // optional metrics hook
	Client  *http.Client    // optional, mainly for tests
}

// fetch status names
const (
	StatusCached      = "cached"
	StatusUpdated     = "updated"
	StatusNotModified = "not_modified"
	StatusSameContent = "same_content"
	StatusStale       = "stale"
	StatusLocal       = "local"
	StatusFailed      = "failed"
)

// defaults
const (
	_DEFAULT_MAXAGE  = 24 * time.Hour
	_DEFAULT_TIMEOUT = 120 * time.Second
	_DEFAULT_WORKERS = 5
)

// registry delegated-stats urls
var registries = []struct{ name, url string }{
	{"ripencc", "https://ftp.ripe.net/ripe/stats/delegated-ripencc-latest"},
	{"arin", "https://ftp.arin.net/pub/stats/arin/delegated-arin-latest"},
	{"apnic", "https://ftp.apnic.net/pub/stats/apnic/delegated-apnic-latest"},
	{"lacnic", "https://ftp.lacnic.net/pub/stats/lacnic/delegated-lacnic-latest"},
	{"afrinic", "https://ftp.afrinic.net/pub/stats/afrinic/delegated-afrinic-latest"},
}

// DefaultSources returns the five RIR sources cached below store
func DefaultSources(store string) []Source {
	srcs := make([]Source, 0, len(registries))
	for _, r := range registries {
		srcs = append(srcs, Source{
			Name:      r.name,
			URL:       r.url,
			File:      CacheFile(store, r.name),
			UserAgent: _DEFAULT_USERAGENT,
		})
	}
	return srcs
}

// CacheFile ...
func CacheFile(store, name string) string {
	return filepath.Join(store, "delegated-"+name+"-latest.zst")
}

// GetSources returns every source with a readable local file, fetching
// missing or outdated ones concurrently. A failing source is logged and
// left out, the remaining sources are still returned.
func GetSources(ctx context.Context, opt Options) ([]Source, error) {
	opt = opt.withDefaults()
	srcs := opt.Sources
	if srcs == nil {
		srcs = DefaultSources(opt.Store)
	}
	if !opt.Offline {
		if err := ensureDir(opt.Store); err != nil {
			return nil, err
		}
	}

	ok := make([]bool, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.Workers)
	for i, src := range srcs {
		g.Go(func() error {
			status := prepare(gctx, src, opt)
			if opt.Observe != nil {
				opt.Observe.ObserveFetch(src.Name, status)
			}
			ok[i] = status != StatusFailed
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ready := make([]Source, 0, len(srcs))
	for i, src := range srcs {
		if ok[i] {
			ready = append(ready, src)
		}
	}
	return ready, nil
}

func (opt Options) withDefaults() Options {
	if opt.Log == nil {
		opt.Log = logger.Nop()
	}
	if opt.Store == "" {
		opt.Store = filepath.Join(os.TempDir(), "rir2cidr")
		opt.Log.Warn().Str("store", opt.Store).Msg("[rirfetch] source store|cache not defined, fallback to unsecure tmp dir")
	}
	if opt.MaxAge <= 0 {
		opt.MaxAge = _DEFAULT_MAXAGE
	}
	if opt.Timeout <= 0 {
		opt.Timeout = _DEFAULT_TIMEOUT
	}
	if opt.Workers <= 0 {
		opt.Workers = _DEFAULT_WORKERS
	}
	return opt
}
