// Package collapse aggregates CIDR blocks into the minimal equivalent set.
//
// The result of Aggregate is sorted by base address, pairwise disjoint and
// covers exactly the addresses covered by the input. No block of the result
// contains another and no two blocks are halves of the same parent.
package collapse

import (
	"fmt"
	"slices"

	"paepcke.de/rir2cidr/netblock"
)

// Aggregate collapses blocks of one family. The input slice is left untouched.
// A block of another family is a caller bug and panics.
func Aggregate(fam netblock.Family, blocks []netblock.Block) []netblock.Block {
	out := make([]netblock.Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Family() != fam {
			panic(fmt.Sprintf("collapse: %s block %s in %s aggregation", b.Family(), b, fam))
		}
		out = append(out, b)
	}

	// dedupe, sort by (base, prefix length)
	slices.SortFunc(out, netblock.Block.Compare)
	out = slices.Compact(out)

	// merge passes until a fixed point is reached
	for {
		var changed bool
		out, changed = pass(out)
		if !changed {
			return out
		}
	}
}

// pass runs one left to right merge over sorted, de-duplicated blocks.
// The stack top is re-checked after every merge, so parents produced by a
// merge cascade upward inside the same pass.
func pass(in []netblock.Block) ([]netblock.Block, bool) {
	changed := false
	stack := in[:0]
	for _, b := range in {
		if n := len(stack); n > 0 && stack[n-1].Contains(b) {
			changed = true
			continue
		}
		stack = append(stack, b)
		for n := len(stack); n > 1 && stack[n-2].IsSibling(stack[n-1]); n = len(stack) {
			parent, _ := stack[n-2].Parent()
			stack = append(stack[:n-2], parent)
			changed = true
		}
	}
	return stack, changed
}

// ByFamily splits mixed blocks into ipv4 and ipv6, order is kept
func ByFamily(blocks []netblock.Block) (v4, v6 []netblock.Block) {
	for _, b := range blocks {
		switch b.Family() {
		case netblock.V4:
			v4 = append(v4, b)
		case netblock.V6:
			v6 = append(v6, b)
		default:
			panic("collapse: invalid block in input")
		}
	}
	return v4, v6
}

// All splits mixed blocks by family and aggregates both
func All(blocks []netblock.Block) (v4, v6 []netblock.Block) {
	v4, v6 = ByFamily(blocks)
	return Aggregate(netblock.V4, v4), Aggregate(netblock.V6, v6)
}
