package netblock

const digits = "0123456789abcdef"

// String returns the canonical "address/prefixLength" form
func (b Block) String() string {
	return string(b.AppendTo(make([]byte, 0, b.maxTextLen())))
}

// MarshalText ...
func (b Block) MarshalText() ([]byte, error) {
	if !b.IsValid() {
		return nil, ErrInvalid
	}
	return b.AppendTo(make([]byte, 0, b.maxTextLen())), nil
}

// UnmarshalText ...
func (b *Block) UnmarshalText(text []byte) error {
	x, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = x
	return nil
}

// AppendTo appends the canonical text form of b to dst
func (b Block) AppendTo(dst []byte) []byte {
	switch b.fam {
	case V4:
		dst = b.appendTo4(dst)
	case V6:
		dst = b.appendTo6(dst)
	default:
		return append(dst, "invalid block"...)
	}
	dst = append(dst, '/')
	return appendDecimal(dst, b.bits)
}

func (b Block) maxTextLen() int {
	if b.fam == V4 {
		return len("255.255.255.255/32")
	}
	return len("ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffff/128")
}

func (b Block) v4(i uint8) uint8 { return uint8(b.base.lo >> ((3 - i) * 8)) }

func (b Block) v6u16(i uint8) uint16 {
	half := b.base.lo
	if i < 4 {
		half = b.base.hi
	}
	return uint16(half >> ((3 - i%4) * 16))
}

func (b Block) appendTo4(ret []byte) []byte {
	ret = appendDecimal(ret, b.v4(0))
	ret = append(ret, '.')
	ret = appendDecimal(ret, b.v4(1))
	ret = append(ret, '.')
	ret = appendDecimal(ret, b.v4(2))
	ret = append(ret, '.')
	ret = appendDecimal(ret, b.v4(3))
	return ret
}

// appendTo6 writes RFC 5952 text: lower case, the first longest run of two
// or more zero fields collapsed to "::"
func (b Block) appendTo6(ret []byte) []byte {
	zeroStart, zeroEnd := uint8(255), uint8(255)
	for i := uint8(0); i < 8; i++ {
		j := i
		for j < 8 && b.v6u16(j) == 0 {
			j++
		}
		if l := j - i; l >= 2 && l > zeroEnd-zeroStart {
			zeroStart, zeroEnd = i, j
		}
	}
	for i := uint8(0); i < 8; i++ {
		if i == zeroStart {
			ret = append(ret, ':', ':')
			i = zeroEnd
			if i >= 8 {
				break
			}
		} else if i > 0 {
			ret = append(ret, ':')
		}
		ret = appendHex(ret, b.v6u16(i))
	}
	return ret
}

func appendDecimal(b []byte, x uint8) []byte {
	if x >= 100 {
		b = append(b, digits[x/100])
	}
	if x >= 10 {
		b = append(b, digits[x/10%10])
	}
	return append(b, digits[x%10])
}

func appendHex(b []byte, x uint16) []byte {
	if x >= 0x1000 {
		b = append(b, digits[x>>12])
	}
	if x >= 0x100 {
		b = append(b, digits[x>>8&0xf])
	}
	if x >= 0x10 {
		b = append(b, digits[x>>4&0xf])
	}
	return append(b, digits[x&0xf])
}
