// package rir2cidr turns RIR delegated-stats files into the minimal set of
// CIDR blocks covering the address space of a set of countries
package rir2cidr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"paepcke.de/rir2cidr/collapse"
	"paepcke.de/rir2cidr/delegation"
	"paepcke.de/rir2cidr/netblock"
	"paepcke.de/rir2cidr/rirfetch"
)

// ErrNoCountry ...
var ErrNoCountry = errors.New("[rir2cidr] no valid country code")

// Report describes a finished run
type Report struct {
	Countries delegation.Countries
	Sources   []rirfetch.Source
	Stats     Stats
	RawV4     int
	RawV6     int
	V4        []netblock.Block
	V6        []netblock.Block
	Elapsed   time.Duration
}

// Generate runs countries -> sources -> parse -> aggregate -> write once.
// Nothing is written when cfg.Outfile is empty.
func Generate(ctx context.Context, cfg Config) (rep *Report, err error) {
	t0 := time.Now()
	cfg = cfg.withDefaults()
	log := cfg.Log
	defer func() {
		cfg.Metrics.ObserveRun(time.Since(t0), err)
		if cfg.Textfile != "" {
			if terr := cfg.Metrics.WriteTextfile(cfg.Textfile); terr != nil {
				log.Warn().Err(terr).Str("file", cfg.Textfile).Msg("[rir2cidr] unable to write metrics textfile")
			}
		}
	}()

	// countries
	countries, err := cfg.CountrySet()
	if err != nil {
		return nil, err
	}
	if countries.Len() == 0 {
		return nil, ErrNoCountry
	}
	log.Info().Str("countries", countries.String()).Msg("[rir2cidr] target countries")

	// verify, fetch, report sources
	srcs, err := rirfetch.GetSources(ctx, cfg.fetchOptions())
	if err != nil {
		return nil, err
	}
	if len(srcs) == 0 {
		return nil, ErrNoSource
	}

	// parse sourcefiles
	res, err := ParseSources(ctx, srcs, countries, log)
	if err != nil {
		return nil, err
	}

	rep = &Report{
		Countries: countries,
		Sources:   srcs,
		Stats:     res.Stats,
		RawV4:     len(res.V4),
		RawV6:     len(res.V6),
		V4:        []netblock.Block{},
		V6:        []netblock.Block{},
	}
	if !cfg.NoIPv4 {
		rep.V4 = collapse.Aggregate(netblock.V4, res.V4)
	}
	if !cfg.NoIPv6 {
		rep.V6 = collapse.Aggregate(netblock.V6, res.V6)
	}

	// write
	if cfg.Outfile != "" {
		if err := WriteList(cfg.Outfile, cfg.Format, rep.V4, rep.V6); err != nil {
			return nil, err
		}
	}
	rep.Elapsed = time.Since(t0)
	rep.observe(cfg)
	rep.log(log, cfg.Outfile)
	return rep, nil
}

// observe ...
func (r *Report) observe(cfg Config) {
	m := cfg.Metrics
	m.AddRecords(r.Stats.Records())
	for reason, n := range r.Stats.Rejected {
		m.AddRejected(reason, n)
	}
	m.SetBlocks(netblock.V4.String(), "raw", r.RawV4)
	m.SetBlocks(netblock.V6.String(), "raw", r.RawV6)
	m.SetBlocks(netblock.V4.String(), "aggregated", len(r.V4))
	m.SetBlocks(netblock.V6.String(), "aggregated", len(r.V6))
}

// log ...
func (r *Report) log(log *zerolog.Logger, file string) {
	rejected := zerolog.Dict()
	for _, reason := range delegation.Reasons {
		rejected.Str(reason.String(), humanize.Comma(int64(r.Stats.Rejected[reason])))
	}
	log.Info().
		Str("lines", humanize.Comma(int64(r.Stats.Lines))).
		Str("skipped", humanize.Comma(int64(r.Stats.Skipped))).
		Dict("rejected", rejected).
		Msg("[rir2cidr] records interpreted")
	log.Info().
		Str("raw", fmt.Sprintf("%s ipv4, %s ipv6", humanize.Comma(int64(r.RawV4)), humanize.Comma(int64(r.RawV6)))).
		Str("aggregated", fmt.Sprintf("%s ipv4, %s ipv6", humanize.Comma(int64(len(r.V4))), humanize.Comma(int64(len(r.V6))))).
		Str("file", file).
		Dur("elapsed", r.Elapsed).
		Msg("[rir2cidr] subnets aggregated")
}
