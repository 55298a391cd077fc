package rir2cidr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"paepcke.de/rir2cidr/delegation"
	"paepcke.de/rir2cidr/logger"
	"paepcke.de/rir2cidr/netblock"
	"paepcke.de/rir2cidr/rirfetch"
)

const (
	_lineSize    = 256
	_maxLineSize = 1 << 20
)

// ErrNoSource is returned when not a single source could be read
var ErrNoSource = errors.New("[rir2cidr] no usable source")

// Stats counts what happened to the lines of a run
type Stats struct {
	Lines       uint64                       // raw lines read
	Skipped     uint64                       // blank and comment lines
	AcceptedV4  uint64                       // records turned into ipv4 blocks
	AcceptedV6  uint64                       // records turned into ipv6 blocks
	Rejected    map[delegation.Reason]uint64 // records dropped, by reason
	SourceLines map[string]uint64            // raw lines per source
}

// Records is the number of interpreted lines
func (s *Stats) Records() uint64 {
	n := s.AcceptedV4 + s.AcceptedV6
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// RejectedTotal ...
func (s *Stats) RejectedTotal() uint64 {
	var n uint64
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// merge ...
func (s *Stats) merge(o Stats) {
	s.Lines += o.Lines
	s.Skipped += o.Skipped
	s.AcceptedV4 += o.AcceptedV4
	s.AcceptedV6 += o.AcceptedV6
	for r, c := range o.Rejected {
		if s.Rejected == nil {
			s.Rejected = make(map[delegation.Reason]uint64, len(delegation.Reasons))
		}
		s.Rejected[r] += c
	}
	for n, c := range o.SourceLines {
		if s.SourceLines == nil {
			s.SourceLines = make(map[string]uint64)
		}
		s.SourceLines[n] += c
	}
}

// Result holds the accepted, not yet aggregated blocks of a run
type Result struct {
	V4    []netblock.Block
	V6    []netblock.Block
	Stats Stats
}

// add interprets one raw line
func (r *Result) add(line string, countries delegation.Countries) {
	if delegation.Skip(line) {
		r.Stats.Skipped++
		return
	}
	b, err := delegation.InterpretLine(line, countries)
	if err != nil {
		if r.Stats.Rejected == nil {
			r.Stats.Rejected = make(map[delegation.Reason]uint64, len(delegation.Reasons))
		}
		r.Stats.Rejected[delegation.ReasonOf(err)]++
		return
	}
	switch b.Family() {
	case netblock.V4:
		r.V4 = append(r.V4, b)
		r.Stats.AcceptedV4++
	case netblock.V6:
		r.V6 = append(r.V6, b)
		r.Stats.AcceptedV6++
	}
}

// merge ...
func (r *Result) merge(o Result) {
	r.V4 = append(r.V4, o.V4...)
	r.V6 = append(r.V6, o.V6...)
	r.Stats.merge(o.Stats)
}

// ParseReader interprets every line of r in the calling goroutine
func ParseReader(r io.Reader, name string, countries delegation.Countries) (Result, error) {
	var res Result
	scanner := newScanner(r)
	for scanner.Scan() {
		res.Stats.Lines++
		res.add(scanner.Text(), countries)
	}
	res.Stats.SourceLines = map[string]uint64{name: res.Stats.Lines}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("[rir2cidr] [parse] [%s] [%w]", name, err)
	}
	return res, nil
}

// ParseSources streams all source files through a pool of interpreters.
// Unreadable sources are logged and skipped, ErrNoSource is returned when
// none could be read.
func ParseSources(ctx context.Context, srcs []rirfetch.Source, countries delegation.Countries, log *zerolog.Logger) (Result, error) {
	if log == nil {
		log = logger.Nop()
	}
	worker := runtime.NumCPU()

	// channel setup
	feedChan := make(chan string, 1000*worker)
	collectChan := make(chan Result, worker)

	// worker
	go func() {
		bg := sync.WaitGroup{}
		bg.Add(worker)
		for i := 0; i < worker; i++ {
			go func() {
				defer bg.Done()
				var part Result
				for line := range feedChan {
					part.add(line, countries)
				}
				collectChan <- part
			}()
		}
		bg.Wait()
		close(collectChan)
	}()

	// feeder
	var feedStats Stats
	feedStats.SourceLines = make(map[string]uint64, len(srcs))
	readable := 0
	go func() {
		defer close(feedChan)
		for _, src := range srcs {
			n, err := feed(ctx, src, feedChan)
			feedStats.Lines += n
			feedStats.SourceLines[src.Name] += n
			switch {
			case err == nil:
				readable++
				log.Debug().Str("source", src.Name).Uint64("lines", n).Msg("[rir2cidr] source parsed")
			case ctx.Err() != nil:
				return
			default:
				log.Error().Err(err).Str("source", src.Name).Msg("[rir2cidr] skip source")
			}
		}
	}()

	// collect
	var res Result
	for part := range collectChan {
		res.merge(part)
	}
	res.Stats.merge(feedStats)

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if readable == 0 {
		return res, ErrNoSource
	}
	return res, nil
}

// feed sends every line of src to out
func feed(ctx context.Context, src rirfetch.Source, out chan<- string) (uint64, error) {
	r, err := rirfetch.Open(src.File)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	var n uint64
	scanner := newScanner(r)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("[rir2cidr] [parse] [%s] [%w]", src.Name, err)
	}
	return n, nil
}

// newScanner ...
func newScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, _lineSize), _maxLineSize)
	return s
}
