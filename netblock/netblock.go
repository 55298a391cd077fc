// Package netblock provides the fixed-width CIDR block value shared by the
// delegation interpreter and the collapse aggregator.
//
// A Block is an immutable, comparable value: address family, network base
// and prefix length. IPv4 bases live in the low 32 bits of the 128 bit store,
// all arithmetic is unsigned and never leaves the width of the family.
package netblock

import (
	"errors"
	"fmt"
	"net/netip"
)

// Family ...
type Family uint8

// address families
const (
	V4 Family = 4
	V6 Family = 6
)

// Bits returns the address width of the family
func (f Family) Bits() uint8 {
	switch f {
	case V4:
		return 32
	case V6:
		return 128
	}
	panic("netblock: invalid address family [" + fmt.Sprint(uint8(f)) + "]")
}

// String ...
func (f Family) String() string {
	switch f {
	case V4:
		return "ipv4"
	case V6:
		return "ipv6"
	}
	return "invalid"
}

// offset is the number of unused leading bits in the 128 bit store
func (f Family) offset() uint8 { return 128 - f.Bits() }

// Block is one CIDR block: the network base and its prefix length.
// The zero Block is invalid.
type Block struct {
	fam  Family
	base uint128
	bits uint8
}

// ErrInvalid ...
var ErrInvalid = errors.New("netblock: invalid block")

// build is the single constructor, it enforces the width invariants and
// masks off host bits
func build(fam Family, base uint128, bits uint8) Block {
	if bits > fam.Bits() {
		panic(fmt.Sprintf("netblock: prefix length /%d exceeds %s width", bits, fam))
	}
	if fam == V4 && (base.hi != 0 || base.lo>>32 != 0) {
		panic("netblock: ipv4 base wider than 32 bit")
	}
	return Block{fam: fam, base: base.and(mask128(bits + fam.offset())), bits: bits}
}

// FromAddr returns the block of the given prefix length containing addr.
// Host bits set in addr are masked off (non-strict construction).
func FromAddr(addr netip.Addr, bits int) (Block, error) {
	if !addr.IsValid() {
		return Block{}, fmt.Errorf("%w: [invalid address]", ErrInvalid)
	}
	if addr.Zone() != "" {
		return Block{}, fmt.Errorf("%w: [zone not allowed] [%s]", ErrInvalid, addr)
	}
	fam, base := addrToUint128(addr)
	if bits < 0 || bits > int(fam.Bits()) {
		return Block{}, fmt.Errorf("%w: [prefix length /%d out of range for %s]", ErrInvalid, bits, fam)
	}
	return build(fam, base, uint8(bits)), nil
}

// Parse parses "address/prefixLength", host bits are masked off
func Parse(s string) (Block, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Block{}, fmt.Errorf("%w: [%s]", ErrInvalid, err.Error())
	}
	return FromAddr(p.Addr(), p.Bits())
}

// MustParse ...
func MustParse(s string) Block {
	b, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return b
}

// FromRange returns the minimal list of blocks covering first..last inclusive
func FromRange(first, last netip.Addr) ([]Block, error) {
	if !first.IsValid() || !last.IsValid() || first.Zone() != "" || last.Zone() != "" {
		return nil, fmt.Errorf("%w: [invalid range bounds]", ErrInvalid)
	}
	ffam, a := addrToUint128(first)
	lfam, b := addrToUint128(last)
	if ffam != lfam {
		return nil, fmt.Errorf("%w: [mixed family range] [%s-%s]", ErrInvalid, first, last)
	}
	if b.compare(a) < 0 {
		return nil, fmt.Errorf("%w: [range end before start] [%s-%s]", ErrInvalid, first, last)
	}
	return appendRangeBlocks(nil, ffam, a, b), nil
}

// IsValid ...
func (b Block) IsValid() bool { return b.fam == V4 || b.fam == V6 }

// Family ...
func (b Block) Family() Family { return b.fam }

// Bits returns the prefix length
func (b Block) Bits() uint8 { return b.bits }

// Addr returns the network base address
func (b Block) Addr() netip.Addr { return uint128ToAddr(b.fam, b.base) }

// LastAddr returns the highest address inside the block
func (b Block) LastAddr() netip.Addr { return uint128ToAddr(b.fam, b.last()) }

// Prefix ...
func (b Block) Prefix() netip.Prefix { return netip.PrefixFrom(b.Addr(), int(b.bits)) }

func (b Block) mask() uint128 { return mask128(b.bits + b.fam.offset()) }
func (b Block) last() uint128 { return b.base.bitsSetFrom(b.bits + b.fam.offset()) }

// Contains reports whether o lies entirely inside b (equal blocks included)
func (b Block) Contains(o Block) bool {
	return b.fam == o.fam && b.bits <= o.bits && o.base.and(b.mask()) == b.base
}

// Overlaps reports whether b and o share at least one address. For CIDR
// blocks this only happens when one contains the other.
func (b Block) Overlaps(o Block) bool { return b.Contains(o) || o.Contains(b) }

// Parent returns the enclosing block one bit shorter
func (b Block) Parent() (Block, bool) {
	if b.bits == 0 {
		return Block{}, false
	}
	return build(b.fam, b.base, b.bits-1), true
}

// Sibling returns the other half of the parent block
func (b Block) Sibling() (Block, bool) {
	if b.bits == 0 {
		return Block{}, false
	}
	return Block{fam: b.fam, base: b.base.xor(bitAt(b.bits - 1 + b.fam.offset())), bits: b.bits}, true
}

// IsSibling reports whether b and o are the two distinct halves of one parent
func (b Block) IsSibling(o Block) bool {
	s, ok := b.Sibling()
	return ok && s == o
}

// Compare orders by family (ipv4 first), base address, prefix length
func (b Block) Compare(o Block) int {
	switch {
	case b.fam < o.fam:
		return -1
	case b.fam > o.fam:
		return 1
	}
	if c := b.base.compare(o.base); c != 0 {
		return c
	}
	switch {
	case b.bits < o.bits:
		return -1
	case b.bits > o.bits:
		return 1
	}
	return 0
}

// addrToUint128 ...
func addrToUint128(addr netip.Addr) (Family, uint128) {
	if addr.Is4() {
		a := addr.As4()
		return V4, uint128{0, uint64(a[0])<<24 | uint64(a[1])<<16 | uint64(a[2])<<8 | uint64(a[3])}
	}
	a := addr.As16()
	var u uint128
	for i := 0; i < 8; i++ {
		u.hi = u.hi<<8 | uint64(a[i])
		u.lo = u.lo<<8 | uint64(a[i+8])
	}
	return V6, u
}

// uint128ToAddr ...
func uint128ToAddr(fam Family, u uint128) netip.Addr {
	switch fam {
	case V4:
		return netip.AddrFrom4([4]byte{byte(u.lo >> 24), byte(u.lo >> 16), byte(u.lo >> 8), byte(u.lo)})
	case V6:
		var a [16]byte
		for i := 0; i < 8; i++ {
			a[i] = byte(u.hi >> (56 - 8*i))
			a[i+8] = byte(u.lo >> (56 - 8*i))
		}
		return netip.AddrFrom16(a)
	}
	return netip.Addr{}
}

// comparePrefixes ...
func comparePrefixes(a, b uint128) (common uint8, aZeroBSet bool) {
	common = a.commonPrefixLen(b)
	if common == 128 {
		return common, true
	}
	m := mask128(common)
	return common, (a.xor(a.and(m)).isZero() &&
		b.or(m) == uint128{^uint64(0), ^uint64(0)})
}

// appendRangeBlocks splits a..b into the blocks that exactly cover it
func appendRangeBlocks(dst []Block, fam Family, a, b uint128) []Block {
	common, ok := comparePrefixes(a, b)
	if ok {
		return append(dst, Block{fam: fam, base: a, bits: common - fam.offset()})
	}
	dst = appendRangeBlocks(dst, fam, a, a.bitsSetFrom(common+1))
	dst = appendRangeBlocks(dst, fam, b.bitsClearedFrom(common+1), b)
	return dst
}
