package rir2cidr

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"paepcke.de/rir2cidr/delegation"
	"paepcke.de/rir2cidr/netblock"
	"paepcke.de/rir2cidr/rirfetch"
)

const ripe = `2|ripencc|20240101|9|19830705|20240101|+0100
ripencc|*|ipv4|*|5|summary
# comment

ripencc|DE|ipv4|192.0.2.0|128|20000101|allocated
ripencc|de|ipv4|192.0.2.128|128|20000101|assigned
ripencc|DE|ipv4|198.51.100.0|256|20000101|reserved
ripencc|DE|ipv4|203.0.113.0|300|20000101|allocated
ripencc|FR|ipv4|198.51.100.0|256|20000101|allocated
ripencc|DE|asn|3320|1|20000101|allocated
ripencc|DE|ipv6|2001:db8::|32|20000101|allocated
ripencc|DE|ipv6|2001:db8::zz|32|20000101|allocated
`

func TestParseReader(t *testing.T) {
	res, err := ParseReader(strings.NewReader(ripe), "ripencc", delegation.NewCountries("DE"))
	if err != nil {
		t.Fatal(err)
	}
	s := res.Stats
	if s.Lines != 12 || s.Skipped != 2 || s.AcceptedV4 != 2 || s.AcceptedV6 != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
	want := map[delegation.Reason]uint64{
		delegation.OutOfScope:        2,
		delegation.Malformed:         1,
		delegation.NonAllocated:      1,
		delegation.InvalidSize:       1,
		delegation.UnsupportedFamily: 1,
		delegation.InvalidAddress:    1,
	}
	for r, n := range want {
		if s.Rejected[r] != n {
			t.Fatalf("rejected[%s] = %d, want %d", r, s.Rejected[r], n)
		}
	}
	if s.Records() != 10 || s.RejectedTotal() != 7 || s.SourceLines["ripencc"] != 12 {
		t.Fatalf("records = %d, rejected = %d, lines %v", s.Records(), s.RejectedTotal(), s.SourceLines)
	}
	if len(res.V4) != 2 || len(res.V6) != 1 || res.V6[0] != netblock.MustParse("2001:db8::/32") {
		t.Fatalf("blocks v4=%v v6=%v", res.V4, res.V6)
	}
}

func writeSource(t *testing.T, dir, name, body string) rirfetch.Source {
	t.Helper()
	file := filepath.Join(dir, name+".txt")
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return rirfetch.Source{Name: name, File: file}
}

func TestParseSourcesMatchesParseReader(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for i := 0; i < 2000; i++ {
		lines = append(lines, "arin|US|ipv4|10."+strconv.Itoa(i/256)+"."+strconv.Itoa(i%256)+".0|256|20000101|allocated")
	}
	srcs := []rirfetch.Source{
		writeSource(t, dir, "ripencc", ripe),
		writeSource(t, dir, "arin", strings.Join(lines, "\n")+"\n"),
		{Name: "gone", File: filepath.Join(dir, "gone.txt")},
	}
	countries := delegation.NewCountries("DE", "US")
	res, err := ParseSources(context.Background(), srcs, countries, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Lines != 2012 || res.Stats.SourceLines["arin"] != 2000 || res.Stats.SourceLines["gone"] != 0 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
	if res.Stats.AcceptedV4 != 2002 || len(res.V4) != 2002 || len(res.V6) != 1 {
		t.Fatalf("accepted v4=%d v6=%d", len(res.V4), len(res.V6))
	}
	single, err := ParseReader(strings.NewReader(ripe), "ripencc", countries)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Rejected[delegation.InvalidSize] != single.Stats.Rejected[delegation.InvalidSize] {
		t.Fatalf("reject counts differ")
	}
	got := slices.Clone(res.V4)
	slices.SortFunc(got, netblock.Block.Compare)
	if got[0] != netblock.MustParse("10.0.0.0/24") || got[len(got)-1] != netblock.MustParse("192.0.2.128/25") {
		t.Fatalf("unexpected blocks %v ... %v", got[0], got[len(got)-1])
	}
}

func TestParseSourcesNoSource(t *testing.T) {
	srcs := []rirfetch.Source{{Name: "gone", File: filepath.Join(t.TempDir(), "gone.zst")}}
	if _, err := ParseSources(context.Background(), srcs, delegation.NewCountries("DE"), nil); err != ErrNoSource {
		t.Fatalf("err = %v, want ErrNoSource", err)
	}
}

func TestParseSourcesCanceled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srcs := []rirfetch.Source{writeSource(t, dir, "ripencc", ripe)}
	if _, err := ParseSources(ctx, srcs, delegation.NewCountries("DE"), nil); err == nil {
		t.Fatalf("expected context error")
	}
}
