// [forked] from [inet.af/netaddr]
// Copyright 2020 The Inet.Af AUTHORS. All rights reserved.
// Use of this source code is governed by a BSD-style license.
package netblock

import "math/bits"

// uint128 is the fixed-width address store, hi holds the upper 64 bits
type uint128 struct {
	hi uint64
	lo uint64
}

func u64CommonPrefixLen(a, b uint64) uint8          { return uint8(bits.LeadingZeros64(a ^ b)) }
func (u uint128) not() uint128                      { return uint128{^u.hi, ^u.lo} }
func (u uint128) isZero() bool                      { return u.hi|u.lo == 0 }
func (u uint128) or(m uint128) uint128              { return uint128{u.hi | m.hi, u.lo | m.lo} }
func (u uint128) and(m uint128) uint128             { return uint128{u.hi & m.hi, u.lo & m.lo} }
func (u uint128) xor(m uint128) uint128             { return uint128{u.hi ^ m.hi, u.lo ^ m.lo} }
func (u uint128) bitsSetFrom(bit uint8) uint128     { return u.or(mask128(bit).not()) }
func (u uint128) bitsClearedFrom(bit uint8) uint128 { return u.and(mask128(bit)) }
func (u uint128) commonPrefixLen(v uint128) (n uint8) {
	if n = u64CommonPrefixLen(u.hi, v.hi); n == 64 {
		n += u64CommonPrefixLen(u.lo, v.lo)
	}
	return n
}

// compare ...
func (u uint128) compare(v uint128) int {
	switch {
	case u.hi < v.hi:
		return -1
	case u.hi > v.hi:
		return 1
	case u.lo < v.lo:
		return -1
	case u.lo > v.lo:
		return 1
	}
	return 0
}

// mask128 returns the netmask with the leading n of 128 bits set
func mask128(n uint8) uint128 {
	switch {
	case n == 0:
		return uint128{}
	case n < 64:
		return uint128{^uint64(0) << (64 - n), 0}
	case n < 128:
		return uint128{^uint64(0), ^uint64(0) << (128 - n)}
	}
	return uint128{^uint64(0), ^uint64(0)}
}

// bitAt returns a uint128 with only bit n (counted from the top, 0-based) set
func bitAt(n uint8) uint128 {
	if n < 64 {
		return uint128{1 << (63 - n), 0}
	}
	return uint128{0, 1 << (127 - n)}
}
