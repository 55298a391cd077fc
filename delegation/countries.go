package delegation

import (
	"sort"
	"strings"
)

// Countries is the set of upper case ISO 3166-1 alpha-2 codes a run selects
type Countries map[string]struct{}

// NewCountries builds a set from codes, codes are trimmed and upper cased,
// anything that is not exactly two ASCII letters is dropped
func NewCountries(codes ...string) Countries {
	c := make(Countries, len(codes))
	for _, code := range codes {
		c.Add(code)
	}
	return c
}

// ValidCode reports whether code is exactly two ASCII letters
func ValidCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		ch := code[i] | 0x20
		if ch < 'a' || ch > 'z' {
			return false
		}
	}
	return true
}

// Add inserts code and reports whether it was valid
func (c Countries) Add(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !ValidCode(code) {
		return false
	}
	c[code] = struct{}{}
	return true
}

// Has ...
func (c Countries) Has(code string) bool {
	_, ok := c[code]
	return ok
}

// Len ...
func (c Countries) Len() int { return len(c) }

// Sorted returns the codes in ascending order
func (c Countries) Sorted() []string {
	out := make([]string, 0, len(c))
	for code := range c {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// String ...
func (c Countries) String() string { return strings.Join(c.Sorted(), ",") }
