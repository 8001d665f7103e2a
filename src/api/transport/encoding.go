package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Frame widths on the wire.
const (
	TagSize   = 4
	Int32Size = 4
	Int64Size = 8
)

// DefaultByteOrder is the integer layout used when none is configured.
// Both ends of a connection must agree on it.
var DefaultByteOrder binary.ByteOrder = binary.LittleEndian

// Framer reads and writes fixed-width frames over a byte stream:
// 4-byte tags, int32, int64 and int32-length-prefixed strings.
// A Framer is not safe for concurrent use.
type Framer struct {
	rw      io.ReadWriter
	order   binary.ByteOrder
	scratch [Int64Size]byte
}

// NewFramer wraps rw. A nil order selects DefaultByteOrder.
func NewFramer(rw io.ReadWriter, order binary.ByteOrder) *Framer {
	if order == nil {
		order = DefaultByteOrder
	}
	return &Framer{rw: rw, order: order}
}

// ByteOrder returns the integer layout in use.
func (f *Framer) ByteOrder() binary.ByteOrder {
	return f.order
}

// WriteAll keeps writing until every byte of b is accepted.
// A write that accepts no bytes, or reports an error, fails the whole call.
func (f *Framer) WriteAll(b []byte) error {
	sent := 0
	for sent < len(b) {
		n, err := f.rw.Write(b[sent:])
		if n > 0 {
			sent += n
		}
		if err != nil {
			return NewError(KindIO, "write", "", fmt.Errorf("wrote %d of %d bytes: %w", sent, len(b), err))
		}
		if n <= 0 {
			return NewError(KindIO, "write", "", fmt.Errorf("wrote %d of %d bytes: %w", sent, len(b), io.ErrShortWrite))
		}
	}
	return nil
}

// ReadFull fills buf, looping over short reads. It fails if the stream
// ends or stops making progress before len(buf) bytes arrive.
func (f *Framer) ReadFull(buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := f.rw.Read(buf[got:])
		if n > 0 {
			got += n
		}
		if got == len(buf) {
			return nil
		}
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return NewError(KindIO, "read", "", fmt.Errorf("read %d of %d bytes: %w", got, len(buf), err))
		}
		if n <= 0 {
			return NewError(KindIO, "read", "", fmt.Errorf("read %d of %d bytes: %w", got, len(buf), io.ErrNoProgress))
		}
	}
	return nil
}

// ReadAll reads exactly n bytes.
func (f *Framer) ReadAll(n int) ([]byte, error) {
	if n < 0 {
		return nil, NewError(KindProtocol, "read", "", fmt.Errorf("negative read length %d", n))
	}
	buf := make([]byte, n)
	if err := f.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Discard consumes and drops exactly n bytes using buf as scratch space.
func (f *Framer) Discard(n int64, buf []byte) error {
	if len(buf) == 0 {
		buf = make([]byte, 4096)
	}
	for n > 0 {
		chunk := buf
		if n < int64(len(chunk)) {
			chunk = chunk[:n]
		}
		if err := f.ReadFull(chunk); err != nil {
			return err
		}
		n -= int64(len(chunk))
	}
	return nil
}

// SendTag writes a fixed 4-byte command tag, no length prefix.
func (f *Framer) SendTag(tag [TagSize]byte) error {
	return f.WriteAll(tag[:])
}

// RecvTag reads a 4-byte command tag.
func (f *Framer) RecvTag() ([TagSize]byte, error) {
	var tag [TagSize]byte
	err := f.ReadFull(tag[:])
	return tag, err
}

func (f *Framer) SendInt32(v int32) error {
	f.order.PutUint32(f.scratch[:Int32Size], uint32(v))
	return f.WriteAll(f.scratch[:Int32Size])
}

func (f *Framer) RecvInt32() (int32, error) {
	if err := f.ReadFull(f.scratch[:Int32Size]); err != nil {
		return 0, err
	}
	return int32(f.order.Uint32(f.scratch[:Int32Size])), nil
}

func (f *Framer) SendInt64(v int64) error {
	f.order.PutUint64(f.scratch[:Int64Size], uint64(v))
	return f.WriteAll(f.scratch[:Int64Size])
}

func (f *Framer) RecvInt64() (int64, error) {
	if err := f.ReadFull(f.scratch[:Int64Size]); err != nil {
		return 0, err
	}
	return int64(f.order.Uint64(f.scratch[:Int64Size])), nil
}

// SendString writes an int32 length followed by the raw bytes of s.
// No terminator, no encoding conversion.
func (f *Framer) SendString(s string) error {
	if len(s) > math.MaxInt32 {
		return NewError(KindValidation, "write", "", fmt.Errorf("string of %d bytes does not fit an int32 length", len(s)))
	}
	if err := f.SendInt32(int32(len(s))); err != nil {
		return err
	}
	return f.WriteAll([]byte(s))
}

// RecvString reads a length-prefixed string. A length below zero or above
// max is rejected before any payload byte is consumed.
func (f *Framer) RecvString(max int) (string, error) {
	n, err := f.RecvInt32()
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > max {
		return "", NewError(KindProtocol, "read", "", fmt.Errorf("string length %d out of range [0, %d]", n, max))
	}
	b, err := f.ReadAll(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
