package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures on the wire and around it.
type Kind int

const (
	// KindIO is a read or write on an open channel (or local file) that made no progress.
	KindIO Kind = iota
	// KindResolution is a host that could not be resolved.
	KindResolution
	// KindConnect is a transport-level connect failure.
	KindConnect
	// KindValidation is an input rejected before any bytes were exchanged.
	KindValidation
	// KindProtocol is a received field outside its accepted range.
	KindProtocol
	// KindTransfer aborts an upload batch mid-stream.
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindResolution:
		return "resolution error"
	case KindConnect:
		return "connect error"
	case KindValidation:
		return "validation error"
	case KindProtocol:
		return "protocol error"
	case KindTransfer:
		return "transfer error"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Error carries the kind, the operation and the batch item a failure belongs to.
type Error struct {
	Kind Kind
	Op   string
	Item string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteByte(' ')
	}
	if e.Item != "" {
		fmt.Fprintf(&b, "%q ", e.Item)
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with kind, op and item.
func NewError(kind Kind, op, item string, err error) *Error {
	return &Error{Kind: kind, Op: op, Item: item, Err: err}
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
