package collapse

import (
	"math/rand/v2"
	"net/netip"
	"slices"
	"testing"

	"paepcke.de/rir2cidr/netblock"
)

func blocks(t *testing.T, in ...string) []netblock.Block {
	t.Helper()
	out := make([]netblock.Block, 0, len(in))
	for _, s := range in {
		b, err := netblock.Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		out = append(out, b)
	}
	return out
}

func texts(in []netblock.Block) []string {
	out := make([]string, len(in))
	for i, b := range in {
		out[i] = b.String()
	}
	return out
}

func TestAggregateExamples(t *testing.T) {
	cases := []struct {
		name string
		fam  netblock.Family
		in   []string
		want []string
	}{
		{"containment drop", netblock.V4, []string{"10.0.0.0/24", "10.0.0.0/25"}, []string{"10.0.0.0/24"}},
		{"containment drop reversed", netblock.V4, []string{"10.0.0.128/25", "10.0.0.0/24"}, []string{"10.0.0.0/24"}},
		{"sibling merge", netblock.V4, []string{"10.0.0.0/25", "10.0.0.128/25"}, []string{"10.0.0.0/24"}},
		{"not siblings", netblock.V4, []string{"10.0.1.128/25", "10.0.0.0/25"}, []string{"10.0.0.0/25", "10.0.1.128/25"}},
		{"adjacent but misaligned", netblock.V4, []string{"10.0.0.128/25", "10.0.1.0/25"}, []string{"10.0.0.128/25", "10.0.1.0/25"}},
		{"cascade", netblock.V4, []string{"10.0.0.192/26", "10.0.0.0/26", "10.0.0.128/26", "10.0.0.64/26"}, []string{"10.0.0.0/24"}},
		{"cascade uneven", netblock.V4, []string{"10.0.0.0/25", "10.0.0.128/26", "10.0.0.192/27", "10.0.0.224/27"}, []string{"10.0.0.0/24"}},
		{"duplicates", netblock.V4, []string{"192.0.2.0/24", "192.0.2.0/24", "192.0.2.0/24"}, []string{"192.0.2.0/24"}},
		{"contained then sibling", netblock.V4, []string{"10.0.0.0/25", "10.0.0.64/26", "10.0.0.128/25"}, []string{"10.0.0.0/24"}},
		{"whole space", netblock.V4, []string{"0.0.0.0/1", "128.0.0.0/1", "10.0.0.0/8"}, []string{"0.0.0.0/0"}},
		{"sorted output", netblock.V4, []string{"192.0.2.0/24", "10.0.0.0/8", "172.16.0.0/12"}, []string{"10.0.0.0/8", "172.16.0.0/12", "192.0.2.0/24"}},
		{"v6 sibling", netblock.V6, []string{"2001:db8:8000::/33", "2001:db8::/33"}, []string{"2001:db8::/32"}},
		{"v6 containment", netblock.V6, []string{"2001:db8::/32", "2001:db8:1::/48", "2a00::/12"}, []string{"2001:db8::/32", "2a00::/12"}},
		{"v6 low half cascade", netblock.V6, []string{"2001:db8::/64", "2001:db8:0:1::/64", "2001:db8:0:2::/63"}, []string{"2001:db8::/62"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := blocks(t, tc.in...)
			got := texts(Aggregate(tc.fam, in))
			if !slices.Equal(got, tc.want) {
				t.Fatalf("Aggregate(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestAggregateEmpty(t *testing.T) {
	for _, fam := range []netblock.Family{netblock.V4, netblock.V6} {
		got := Aggregate(fam, nil)
		if got == nil || len(got) != 0 {
			t.Fatalf("Aggregate(%s, nil) = %#v, want empty non-nil", fam, got)
		}
	}
}

func TestAggregateLeavesInputUntouched(t *testing.T) {
	in := blocks(t, "10.0.0.128/25", "10.0.0.0/25", "10.0.0.0/25")
	before := slices.Clone(in)
	Aggregate(netblock.V4, in)
	if !slices.Equal(in, before) {
		t.Fatalf("input modified: %v, was %v", texts(in), texts(before))
	}
}

func TestAggregateWrongFamilyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for ipv6 block in ipv4 aggregation")
		}
	}()
	Aggregate(netblock.V4, blocks(t, "10.0.0.0/8", "2001:db8::/32"))
}

func TestAll(t *testing.T) {
	v4, v6 := All(blocks(t, "2001:db8::/33", "10.0.0.0/25", "2001:db8:8000::/33", "10.0.0.128/25"))
	if got := texts(v4); !slices.Equal(got, []string{"10.0.0.0/24"}) {
		t.Fatalf("v4 = %v", got)
	}
	if got := texts(v6); !slices.Equal(got, []string{"2001:db8::/32"}) {
		t.Fatalf("v6 = %v", got)
	}
}

// randomV4 draws blocks inside 10.0.0.0/24 so coverage can be enumerated
func randomV4(r *rand.Rand, n int) []netblock.Block {
	out := make([]netblock.Block, 0, n)
	for i := 0; i < n; i++ {
		bits := 24 + r.IntN(9)
		addr := netip.AddrFrom4([4]byte{10, 0, 0, byte(r.IntN(256))})
		b, err := netblock.FromAddr(addr, bits)
		if err != nil {
			panic(err)
		}
		out = append(out, b)
	}
	return out
}

func coverage(in []netblock.Block) [256]bool {
	var cov [256]bool
	for _, b := range in {
		first := b.Addr().As4()[3]
		last := b.LastAddr().As4()[3]
		for i := int(first); i <= int(last); i++ {
			cov[i] = true
		}
	}
	return cov
}

func TestAggregateProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 2000; round++ {
		in := randomV4(r, 1+r.IntN(24))
		got := Aggregate(netblock.V4, in)

		if coverage(got) != coverage(in) {
			t.Fatalf("round %d: union changed\n in=%v\nout=%v", round, texts(in), texts(got))
		}
		if again := Aggregate(netblock.V4, got); !slices.Equal(again, got) {
			t.Fatalf("round %d: not idempotent: %v -> %v", round, texts(got), texts(again))
		}
		for i := range got {
			if i > 0 && got[i-1].Compare(got[i]) >= 0 {
				t.Fatalf("round %d: output not sorted: %v", round, texts(got))
			}
			for j := range got {
				if i == j {
					continue
				}
				if got[i].Overlaps(got[j]) {
					t.Fatalf("round %d: %s overlaps %s", round, got[i], got[j])
				}
				if got[i].IsSibling(got[j]) {
					t.Fatalf("round %d: %s and %s left unmerged", round, got[i], got[j])
				}
			}
		}
	}
}

// oracle merges the input into address intervals and splits every interval
// into CIDR blocks; the minimal CIDR cover of a set is unique
func oracle(t *testing.T, in []netblock.Block) []netblock.Block {
	t.Helper()
	sorted := slices.Clone(in)
	slices.SortFunc(sorted, netblock.Block.Compare)
	var out []netblock.Block
	var first, last netip.Addr
	flush := func() {
		if !first.IsValid() {
			return
		}
		split, err := netblock.FromRange(first, last)
		if err != nil {
			t.Fatalf("FromRange(%s, %s): %v", first, last, err)
		}
		out = append(out, split...)
	}
	for _, b := range sorted {
		lo, hi := b.Addr(), b.LastAddr()
		if first.IsValid() && (lo.Compare(last) <= 0 || (last.Next().IsValid() && lo == last.Next())) {
			if hi.Compare(last) > 0 {
				last = hi
			}
			continue
		}
		flush()
		first, last = lo, hi
	}
	flush()
	return out
}

func TestAggregateMatchesIntervalOracle(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 500; round++ {
		var in []netblock.Block
		for i := 0; i < 1+r.IntN(32); i++ {
			// v6 blocks clustered under 2001:db8::/32 with prefixes around the 64 bit boundary
			var a [16]byte
			a[0], a[1], a[2], a[3] = 0x20, 0x01, 0x0d, 0xb8
			a[7] = byte(r.IntN(4))
			a[8] = byte(r.IntN(4)) << 6
			b, err := netblock.FromAddr(netip.AddrFrom16(a), 60+r.IntN(8))
			if err != nil {
				t.Fatalf("FromAddr: %v", err)
			}
			in = append(in, b)
		}
		got, want := Aggregate(netblock.V6, in), oracle(t, in)
		if !slices.Equal(got, want) {
			t.Fatalf("round %d:\n in=%v\ngot=%v\nwant=%v", round, texts(in), texts(got), texts(want))
		}
	}
}
