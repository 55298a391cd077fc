// package rirfetch ...
package rirfetch

// import
import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// const
const (
	_DEFAULT_USERAGENT = "rir2cidr" // user agent used for fetch
	_META_SUFFIX       = ".meta.yaml"
	_minBytes          = 64        // smaller bodies are error pages, not stats files
	_maxBytes          = 512 << 20 // hard limit for a single source download
)

// Meta is the yaml sidecar stored next to every cache file
type Meta struct {
	URL          string    `yaml:"url"`
	ETag         string    `yaml:"etag,omitempty"`
	LastModified string    `yaml:"last_modified,omitempty"`
	FetchedAt    time.Time `yaml:"fetched_at"`
	CheckedAt    time.Time `yaml:"checked_at"`
	SizeBytes    int64     `yaml:"size_bytes"`
	XXHash       string    `yaml:"xxhash"`
}

// MetaFile ...
func MetaFile(file string) string { return file + _META_SUFFIX }

// ReadMeta returns the sidecar of file, nil if missing or unreadable
func ReadMeta(file string) *Meta {
	data, err := os.ReadFile(MetaFile(file))
	if err != nil {
		return nil
	}
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil
	}
	return &m
}

// writeMeta ...
func writeMeta(file string, m *Meta) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("[rirfetch] [meta] [%w]", err)
	}
	return writeFileAtomic(MetaFile(file), data)
}

// prepare makes src usable and returns the fetch status
func prepare(ctx context.Context, src Source, opt Options) string {
	log := opt.Log.With().Str("source", src.Name).Logger()
	readable := isReadable(src.File)

	// local-only source
	if src.URL == "" {
		if !readable {
			log.Error().Str("file", src.File).Msg("[rirfetch] local source not readable")
			return StatusFailed
		}
		return StatusLocal
	}

	prev := ReadMeta(src.File)
	if readable && !opt.Force && isFresh(src.File, prev, opt.MaxAge) {
		log.Debug().Str("file", src.File).Msg("[rirfetch] cache fresh")
		return StatusCached
	}
	if opt.Offline {
		if readable {
			log.Warn().Str("file", src.File).Msg("[rirfetch] offline, using outdated cache")
			return StatusStale
		}
		log.Error().Str("file", src.File).Msg("[rirfetch] offline and no cache")
		return StatusFailed
	}
	if !readable {
		prev = nil
	}

	status, err := fetchSRC(ctx, src, prev, opt)
	if err != nil {
		if readable {
			log.Warn().Err(err).Msg("[rirfetch] fetch failed, using outdated cache")
			return StatusStale
		}
		log.Error().Err(err).Msg("[rirfetch] unable to [read|download] source")
		return StatusFailed
	}
	log.Info().Str("status", status).Str("file", src.File).Msg("[rirfetch] source ready")
	return status
}

// isFresh ...
func isFresh(file string, m *Meta, maxAge time.Duration) bool {
	if m != nil && !m.CheckedAt.IsZero() {
		return time.Since(m.CheckedAt) < maxAge
	}
	inf, err := os.Stat(file)
	return err == nil && time.Since(inf.ModTime()) < maxAge
}

// fetchSRC downloads src.URL into the zstd compressed cache file
func fetchSRC(ctx context.Context, src Source, prev *Meta, opt Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opt.Timeout)
	defer cancel()

	// setup request
	request, err := getRequest(ctx, src.URL, src.UserAgent)
	if err != nil {
		return StatusFailed, err
	}
	if prev != nil && prev.URL == src.URL {
		if prev.ETag != "" {
			request.Header.Set("If-None-Match", prev.ETag)
		}
		if prev.LastModified != "" {
			request.Header.Set("If-Modified-Since", prev.LastModified)
		}
	}

	// setup transport layer
	client := opt.Client
	if client == nil {
		tlsconf, err := getTlsConf(src.TrustCA, src.TLSKeyPin)
		if err != nil {
			return StatusFailed, err
		}
		client = getClient(getTransport(tlsconf))
	}

	opt.Log.Info().Str("source", src.Name).Str("url", src.URL).Msg("[rirfetch] fetch")
	resp, err := client.Do(request)
	if err != nil {
		return StatusFailed, fmt.Errorf("[rirfetch] [%s] [fetch] [%w]", src.Name, err)
	}
	defer resp.Body.Close()

	now := time.Now().UTC()
	if resp.StatusCode == http.StatusNotModified && prev != nil {
		prev.CheckedAt = now
		return StatusNotModified, writeMeta(src.File, prev)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusFailed, fmt.Errorf("[rirfetch] [%s] [fetch] [http status %d]", src.Name, resp.StatusCode)
	}

	// fetch body, enforce size limits
	data, err := io.ReadAll(io.LimitReader(resp.Body, _maxBytes+1))
	if err != nil {
		return StatusFailed, fmt.Errorf("[rirfetch] [%s] [body] [%w]", src.Name, err)
	}
	l := len(data)
	if l > _maxBytes || l < _minBytes {
		return StatusFailed, errors.New("[rirfetch] [" + src.Name + "] [unexpected download size] [" + strconv.Itoa(l) + "]")
	}

	meta := &Meta{
		URL:          src.URL,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    now,
		CheckedAt:    now,
		SizeBytes:    int64(l),
		XXHash:       strconv.FormatUint(xxhash.Sum64(data), 16),
	}

	// same bytes as the cache holds, keep the file
	if prev != nil && prev.XXHash == meta.XXHash {
		meta.FetchedAt = prev.FetchedAt
		return StatusSameContent, writeMeta(src.File, meta)
	}

	packed, err := compress(data)
	if err != nil {
		return StatusFailed, err
	}
	if err := writeFileAtomic(src.File, packed); err != nil {
		return StatusFailed, err
	}
	opt.Log.Info().
		Str("source", src.Name).
		Str("size", humanize.Bytes(uint64(l))).
		Str("cached", humanize.Bytes(uint64(len(packed)))).
		Msg("[rirfetch] source cached")
	return StatusUpdated, writeMeta(src.File, meta)
}
