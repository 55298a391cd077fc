package rir2cidr

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"paepcke.de/rir2cidr/delegation"
	"paepcke.de/rir2cidr/logger"
	"paepcke.de/rir2cidr/metrics"
	"paepcke.de/rir2cidr/rirfetch"
)

// ENV VAR NAMES
const (
	_APPNAME      = "RIR2CIDR"
	_ENV_OUTFILE  = _APPNAME + "_OUTFILE"
	_ENV_STORE    = _APPNAME + "_STORE"
	_ENV_MAXAGE   = _APPNAME + "_MAXAGE"
	_ENV_FORMAT   = _APPNAME + "_FORMAT"
	_ENV_TEXTFILE = _APPNAME + "_TEXTFILE"
	_ENV_NO_IPV4  = "NO_IPV4"
	_ENV_NO_IPV6  = "NO_IPV6"
)

// defaults
const (
	_DEFAULT_FORMAT        = FormatPlain
	_DEFAULT_SERVEINTERVAL = 6 * time.Hour
)

// ErrConfig marks invalid or incomplete settings
var ErrConfig = errors.New("[rir2cidr] [config]")

// Config carries everything a run needs. The yaml tagged fields may come
// from a config file, the rest is wired by the caller.
type Config struct {
	Countries     []string          `yaml:"countries"`      // country codes, exclusive with CountryFile
	CountryFile   string            `yaml:"country_file"`   // one code per line
	Outfile       string            `yaml:"outfile"`        // .zst suffix -> compressed
	Format        string            `yaml:"format"`         // plain|pf
	Store         string            `yaml:"store"`          // source cache directory
	MaxAge        time.Duration     `yaml:"max_age"`        // source cache lifetime
	Offline       bool              `yaml:"offline"`        // cached or local sources only
	Force         bool              `yaml:"force"`          // refetch all sources
	Sources       []rirfetch.Source `yaml:"sources"`        // nil -> the five registries
	Textfile      string            `yaml:"textfile"`       // node_exporter textfile output
	NoIPv4        bool              `yaml:"no_ipv4"`        // skip ipv4 output
	NoIPv6        bool              `yaml:"no_ipv6"`        // skip ipv6 output
	Serve         string            `yaml:"serve"`          // listen address, serve mode only
	ServeInterval time.Duration     `yaml:"serve_interval"` // rebuild interval in serve mode

	Log     *zerolog.Logger  `yaml:"-"`
	Metrics *metrics.Metrics `yaml:"-"`
	Client  *http.Client     `yaml:"-"`
}

// LoadConfig reads a yaml config file
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w unable to read [%s] [%w]", ErrConfig, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w unable to parse [%s] [%w]", ErrConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment, lookup is usually
// syscall.Getenv or os.LookupEnv
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if env, ok := lookup(_ENV_OUTFILE); ok {
		c.Outfile = env
	}
	if env, ok := lookup(_ENV_STORE); ok {
		c.Store = env
	}
	if env, ok := lookup(_ENV_FORMAT); ok {
		c.Format = env
	}
	if env, ok := lookup(_ENV_TEXTFILE); ok {
		c.Textfile = env
	}
	if env, ok := lookup(_ENV_MAXAGE); ok {
		d, err := time.ParseDuration(env)
		if err != nil {
			return fmt.Errorf("%w invalid %s [%s] [%w]", ErrConfig, _ENV_MAXAGE, env, err)
		}
		c.MaxAge = d
	}
	if _, ok := lookup(_ENV_NO_IPV4); ok {
		c.NoIPv4 = true
	}
	if _, ok := lookup(_ENV_NO_IPV6); ok {
		c.NoIPv6 = true
	}
	return nil
}

// Validate reports missing or contradicting settings
func (c *Config) Validate() error {
	var errs []error
	switch {
	case len(c.Countries) > 0 && c.CountryFile != "":
		errs = append(errs, errors.New("country codes and country list file are mutually exclusive"))
	case len(c.Countries) == 0 && c.CountryFile == "":
		errs = append(errs, errors.New("one of country codes or country list file is required"))
	}
	for _, code := range c.Countries {
		if !delegation.ValidCode(strings.TrimSpace(code)) {
			errs = append(errs, errors.New("invalid country code ["+code+"]"))
		}
	}
	if c.Outfile == "" && c.Serve == "" {
		errs = append(errs, errors.New("output file is required"))
	}
	switch c.Format {
	case "", FormatPlain, FormatPF:
	default:
		errs = append(errs, errors.New("unknown output format ["+c.Format+"]"))
	}
	if c.NoIPv4 && c.NoIPv6 {
		errs = append(errs, errors.New("both address families disabled"))
	}
	if c.MaxAge < 0 || c.ServeInterval < 0 {
		errs = append(errs, errors.New("negative duration"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}

// CountrySet returns the selected countries, from Countries or CountryFile.
// List file lines are trimmed and upper cased, lines that are not exactly
// two letters are skipped.
func (c *Config) CountrySet() (delegation.Countries, error) {
	if c.CountryFile == "" {
		set := delegation.NewCountries()
		for _, code := range c.Countries {
			if !set.Add(code) {
				return nil, fmt.Errorf("%w invalid country code [%s]", ErrConfig, code)
			}
		}
		return set, nil
	}
	f, err := os.Open(c.CountryFile)
	if err != nil {
		return nil, fmt.Errorf("%w unable to read country list [%s] [%w]", ErrConfig, c.CountryFile, err)
	}
	defer f.Close()
	set := delegation.NewCountries()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		set.Add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w country list [%s] [%w]", ErrConfig, c.CountryFile, err)
	}
	return set, nil
}

// withDefaults ...
func (c Config) withDefaults() Config {
	if c.Log == nil {
		c.Log = logger.Nop()
	}
	if c.Format == "" {
		c.Format = _DEFAULT_FORMAT
	}
	if c.ServeInterval == 0 {
		c.ServeInterval = _DEFAULT_SERVEINTERVAL
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	return c
}

// fetchOptions ...
func (c Config) fetchOptions() rirfetch.Options {
	return rirfetch.Options{
		Store:   c.Store,
		Sources: c.Sources,
		MaxAge:  c.MaxAge,
		Offline: c.Offline,
		Force:   c.Force,
		Log:     c.Log,
		Observe: c.Metrics,
		Client:  c.Client,
	}
}
