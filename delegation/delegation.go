// Package delegation interprets RIR "delegated-stats" records.
//
// A record is one pipe separated line of a registry statistics file:
//
//	registry|cc|type|start|value|date|status[|opaque-id[|extensions...]]
//
// Interpret turns a record into a netblock.Block or rejects it with a Reason.
// Rejections are ordinary values: callers count them and move on.
package delegation

import (
	"math/bits"
	"net/netip"
	"strconv"
	"strings"

	"paepcke.de/rir2cidr/netblock"
)

// record field positions
const (
	_registry = iota
	_cc
	_type
	_start
	_value
	_date
	_status
	_minFields
)

// const shortcuts
const (
	_sep     = "|"
	_comment = '#'
	_ipv4    = "ipv4"
	_ipv6    = "ipv6"
)

// accepted status values, "ipv4"/"ipv6" appear in some registries' summary style rows
var allocated = map[string]bool{
	"ipv4":      true,
	"ipv6":      true,
	"allocated": true,
	"assigned":  true,
}

// Skip reports whether a raw line carries no record (blank or comment)
func Skip(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || line[0] == _comment
}

// Fields splits a raw record line into its fields
func Fields(line string) []string {
	return strings.Split(strings.TrimSpace(line), _sep)
}

// InterpretLine is Interpret(Fields(line), countries)
func InterpretLine(line string, countries Countries) (netblock.Block, error) {
	return Interpret(Fields(line), countries)
}

// Interpret validates one record and returns the CIDR block it delegates.
// A start address with host bits set is truncated to its network address.
func Interpret(fields []string, countries Countries) (netblock.Block, error) {
	if len(fields) < _minFields {
		return netblock.Block{}, reject(Malformed, "fields", strconv.Itoa(len(fields)), nil)
	}

	cc := strings.ToUpper(strings.TrimSpace(fields[_cc]))
	if !countries.Has(cc) {
		return netblock.Block{}, reject(OutOfScope, "cc", cc, nil)
	}

	status := strings.TrimSpace(fields[_status])
	if !allocated[status] {
		return netblock.Block{}, reject(NonAllocated, "status", status, nil)
	}

	var (
		fam    netblock.Family
		prefix int
	)
	value := strings.TrimSpace(fields[_value])
	switch family := strings.TrimSpace(fields[_type]); family {
	case _ipv4:
		fam = netblock.V4
		hosts, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return netblock.Block{}, reject(InvalidSize, "value", value, err)
		}
		k, ok := log2Exact(hosts)
		if !ok || k > 32 {
			return netblock.Block{}, reject(InvalidSize, "value", value, nil)
		}
		prefix = 32 - k
	case _ipv6:
		fam = netblock.V6
		p, err := strconv.ParseUint(value, 10, 8)
		if err != nil || p > 128 {
			return netblock.Block{}, reject(InvalidSize, "value", value, err)
		}
		prefix = int(p)
	default:
		return netblock.Block{}, reject(UnsupportedFamily, "type", family, nil)
	}

	start := strings.TrimSpace(fields[_start])
	addr, err := parseAddr(fam, start)
	if err != nil {
		return netblock.Block{}, reject(InvalidAddress, "start", start, err)
	}
	b, err := netblock.FromAddr(addr, prefix)
	if err != nil {
		return netblock.Block{}, reject(InvalidAddress, "start", start, err)
	}
	return b, nil
}

// log2Exact returns k for n == 2^k
func log2Exact(n uint64) (int, bool) {
	if n == 0 || n&(n-1) != 0 {
		return 0, false
	}
	return bits.TrailingZeros64(n), true
}

// parseAddr parses start and checks it matches the declared family
func parseAddr(fam netblock.Family, start string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(start)
	if err != nil {
		return netip.Addr{}, err
	}
	switch {
	case addr.Zone() != "":
		return netip.Addr{}, errFamily("zoned address")
	case fam == netblock.V4 && !addr.Is4():
		return netip.Addr{}, errFamily("not an ipv4 address")
	case fam == netblock.V6 && !addr.Is6():
		return netip.Addr{}, errFamily("not an ipv6 address")
	}
	return addr, nil
}

type errFamily string

func (e errFamily) Error() string { return string(e) }
