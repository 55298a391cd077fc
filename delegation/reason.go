package delegation

import "errors"

// Reason classifies why a delegation record was not turned into a block
type Reason uint8

// reject reasons
const (
	Malformed Reason = iota + 1
	OutOfScope
	NonAllocated
	UnsupportedFamily
	InvalidSize
	InvalidAddress
)

// Reasons lists every reject reason in report order
var Reasons = []Reason{Malformed, OutOfScope, NonAllocated, UnsupportedFamily, InvalidSize, InvalidAddress}

// String ...
func (r Reason) String() string {
	switch r {
	case Malformed:
		return "malformed"
	case OutOfScope:
		return "out_of_scope"
	case NonAllocated:
		return "non_allocated"
	case UnsupportedFamily:
		return "unsupported_family"
	case InvalidSize:
		return "invalid_size"
	case InvalidAddress:
		return "invalid_address"
	}
	return "unknown"
}

// sentinels, usable with errors.Is
var (
	ErrMalformed         = errors.New("malformed record")
	ErrOutOfScope        = errors.New("country out of scope")
	ErrNonAllocated      = errors.New("status not allocated")
	ErrUnsupportedFamily = errors.New("unsupported address family")
	ErrInvalidSize       = errors.New("invalid size")
	ErrInvalidAddress    = errors.New("invalid start address")
)

func (r Reason) sentinel() error {
	switch r {
	case Malformed:
		return ErrMalformed
	case OutOfScope:
		return ErrOutOfScope
	case NonAllocated:
		return ErrNonAllocated
	case UnsupportedFamily:
		return ErrUnsupportedFamily
	case InvalidSize:
		return ErrInvalidSize
	case InvalidAddress:
		return ErrInvalidAddress
	}
	return nil
}

// RejectError is returned by Interpret for every dropped record
type RejectError struct {
	Reason Reason
	Field  string // offending field name
	Value  string // offending field value
	Err    error  // underlying parse error, optional
}

// Error ...
func (e *RejectError) Error() string {
	msg := "[delegation] [" + e.Reason.String() + "]"
	if e.Field != "" {
		msg += " [" + e.Field + ":" + e.Value + "]"
	}
	if e.Err != nil {
		msg += " [" + e.Err.Error() + "]"
	}
	return msg
}

// Unwrap ...
func (e *RejectError) Unwrap() error { return e.Err }

// Is matches the sentinel of the reason
func (e *RejectError) Is(target error) bool {
	return target != nil && target == e.Reason.sentinel()
}

// ReasonOf returns the reject reason carried by err, or 0
func ReasonOf(err error) Reason {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return 0
}

func reject(r Reason, field, value string, err error) error {
	return &RejectError{Reason: r, Field: field, Value: value, Err: err}
}
