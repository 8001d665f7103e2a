package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
)

// duplex joins an independent reader and writer into one io.ReadWriter.
type duplex struct {
	io.Reader
	io.Writer
}

// trickle delivers at most one byte per Read or Write call.
type trickle struct {
	r     io.Reader
	w     io.Writer
	calls int
}

func (t *trickle) Read(p []byte) (int, error) {
	t.calls++
	if len(p) > 1 {
		p = p[:1]
	}
	return t.r.Read(p)
}

func (t *trickle) Write(p []byte) (int, error) {
	t.calls++
	if len(p) > 1 {
		p = p[:1]
	}
	return t.w.Write(p)
}

// stalled never makes progress and never reports an error.
type stalled struct{}

func (stalled) Read(p []byte) (int, error)  { return 0, nil }
func (stalled) Write(p []byte) (int, error) { return 0, nil }

func TestStringRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "empty", value: ""},
		{name: "ascii", value: "report.txt"},
		{name: "tag with subdir", value: "~/S1/docs/2024"},
		{name: "raw bytes", value: string([]byte{0x00, 0xff, 0x10, '\n', 0x7f})},
		{name: "utf8", value: "résumé-файл.pdf"},
		{name: "at bound", value: strings.Repeat("x", 2048)},
	}

	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		for _, tc := range tests {
			t.Run(order.String()+"/"+tc.name, func(t *testing.T) {
				var buf bytes.Buffer
				f := NewFramer(&buf, order)
				if err := f.SendString(tc.value); err != nil {
					t.Fatalf("SendString: %v", err)
				}
				if buf.Len() != Int32Size+len(tc.value) {
					t.Fatalf("encoded %d bytes, want %d", buf.Len(), Int32Size+len(tc.value))
				}
				got, err := f.RecvString(2048)
				if err != nil {
					t.Fatalf("RecvString: %v", err)
				}
				if got != tc.value {
					t.Fatalf("RecvString = %q, want %q", got, tc.value)
				}
			})
		}
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	int32s := []int32{0, 1, -1, 37, math.MaxInt32, math.MinInt32, 0x01020304}
	int64s := []int64{0, 1, -1, 37, math.MaxInt64, math.MinInt64, 0x0102030405060708}

	var buf bytes.Buffer
	f := NewFramer(&buf, nil)
	for _, v := range int32s {
		if err := f.SendInt32(v); err != nil {
			t.Fatalf("SendInt32(%d): %v", v, err)
		}
	}
	for _, v := range int64s {
		if err := f.SendInt64(v); err != nil {
			t.Fatalf("SendInt64(%d): %v", v, err)
		}
	}
	for _, want := range int32s {
		got, err := f.RecvInt32()
		if err != nil {
			t.Fatalf("RecvInt32: %v", err)
		}
		if got != want {
			t.Errorf("RecvInt32 = %d, want %d", got, want)
		}
	}
	for _, want := range int64s {
		got, err := f.RecvInt64()
		if err != nil {
			t.Fatalf("RecvInt64: %v", err)
		}
		if got != want {
			t.Errorf("RecvInt64 = %d, want %d", got, want)
		}
	}
}

func TestDefaultByteOrderLayout(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf, nil)
	if err := f.SendInt32(1); err != nil {
		t.Fatalf("SendInt32: %v", err)
	}
	if err := f.SendInt64(37); err != nil {
		t.Fatalf("SendInt64: %v", err)
	}
	want := []byte{1, 0, 0, 0, 37, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("encoded % x, want % x", buf.Bytes(), want)
	}
}

func TestTagIsFixedWidth(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf, nil)
	if err := f.SendTag([TagSize]byte{'U', 'P', 'L', 'D'}); err != nil {
		t.Fatalf("SendTag: %v", err)
	}
	if buf.String() != "UPLD" {
		t.Fatalf("tag bytes = %q, want %q", buf.String(), "UPLD")
	}
	tag, err := f.RecvTag()
	if err != nil {
		t.Fatalf("RecvTag: %v", err)
	}
	if string(tag[:]) != "UPLD" {
		t.Fatalf("RecvTag = %q", tag)
	}
}

func TestTrickleChannelCompletes(t *testing.T) {
	var out bytes.Buffer
	ch := &trickle{w: &out}
	f := NewFramer(ch, nil)

	if err := f.SendString("report.txt"); err != nil {
		t.Fatalf("SendString over trickle: %v", err)
	}
	if err := f.SendInt64(-42); err != nil {
		t.Fatalf("SendInt64 over trickle: %v", err)
	}
	if ch.calls != Int32Size+len("report.txt")+Int64Size {
		t.Fatalf("expected one write per byte, got %d calls", ch.calls)
	}

	ch.r = bytes.NewReader(out.Bytes())
	ch.calls = 0
	got, err := f.RecvString(2048)
	if err != nil {
		t.Fatalf("RecvString over trickle: %v", err)
	}
	if got != "report.txt" {
		t.Fatalf("RecvString = %q", got)
	}
	n, err := f.RecvInt64()
	if err != nil {
		t.Fatalf("RecvInt64 over trickle: %v", err)
	}
	if n != -42 {
		t.Fatalf("RecvInt64 = %d, want -42", n)
	}
}

func TestTruncatedChannelFails(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		recv func(f *Framer) error
	}{
		{
			name: "int32 cut short",
			data: []byte{1, 0},
			recv: func(f *Framer) error { _, err := f.RecvInt32(); return err },
		},
		{
			name: "int64 cut short",
			data: []byte{1, 0, 0, 0, 0},
			recv: func(f *Framer) error { _, err := f.RecvInt64(); return err },
		},
		{
			name: "string body cut short",
			data: []byte{5, 0, 0, 0, 'a', 'b'},
			recv: func(f *Framer) error { _, err := f.RecvString(2048); return err },
		},
		{
			name: "empty stream",
			data: nil,
			recv: func(f *Framer) error { _, err := f.RecvTag(); return err },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFramer(&trickle{r: bytes.NewReader(tc.data)}, nil)
			err := tc.recv(f)
			if err == nil {
				t.Fatal("expected error on truncated stream")
			}
			if !IsKind(err, KindIO) {
				t.Fatalf("expected io error, got %v", err)
			}
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Fatalf("expected wrapped io.ErrUnexpectedEOF, got %v", err)
			}
		})
	}
}

func TestStalledChannelFails(t *testing.T) {
	f := NewFramer(stalled{}, nil)

	if _, err := f.RecvInt32(); !errors.Is(err, io.ErrNoProgress) {
		t.Fatalf("read on stalled channel: got %v, want io.ErrNoProgress", err)
	}
	if err := f.SendInt32(7); !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("write on stalled channel: got %v, want io.ErrShortWrite", err)
	}
}

func TestWriteErrorIsIOError(t *testing.T) {
	pr, pw := io.Pipe()
	pr.Close()
	f := NewFramer(duplex{Reader: pr, Writer: pw}, nil)
	err := f.SendString("report.txt")
	if !IsKind(err, KindIO) {
		t.Fatalf("expected io error writing to closed pipe, got %v", err)
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected wrapped io.ErrClosedPipe, got %v", err)
	}
}

func TestRecvStringRejectsLength(t *testing.T) {
	tests := []struct {
		name   string
		length int32
	}{
		{name: "negative", length: -1},
		{name: "above bound", length: 2049},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := NewFramer(&buf, nil)
			if err := f.SendInt32(tc.length); err != nil {
				t.Fatalf("SendInt32: %v", err)
			}
			buf.WriteString("trailing")
			_, err := f.RecvString(2048)
			if !IsKind(err, KindProtocol) {
				t.Fatalf("expected protocol error, got %v", err)
			}
			if buf.String() != "trailing" {
				t.Fatalf("payload consumed after bad length: %q left", buf.String())
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 10_000)
	payload = append(payload, 'Z')
	f := NewFramer(&trickle{r: bytes.NewReader(payload)}, nil)

	if err := f.Discard(10_000, make([]byte, 64)); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	rest, err := f.ReadAll(1)
	if err != nil {
		t.Fatalf("ReadAll after Discard: %v", err)
	}
	if rest[0] != 'Z' {
		t.Fatalf("stream position wrong after Discard: %q", rest)
	}

	if err := f.Discard(1, nil); !IsKind(err, KindIO) {
		t.Fatalf("Discard past end: expected io error, got %v", err)
	}
}

func TestErrorFormatting(t *testing.T) {
	err := NewError(KindProtocol, "download", "~/S1/a.txt", errors.New("name length -1 out of range"))
	want := `download "~/S1/a.txt" protocol error: name length -1 out of range`
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := NewError(KindTransfer, "upload", "a.txt", NewError(KindIO, "write", "", io.ErrClosedPipe))
	if !IsKind(wrapped, KindTransfer) || !IsKind(wrapped, KindIO) {
		t.Fatal("IsKind should see every kind in the chain")
	}
	if IsKind(wrapped, KindProtocol) {
		t.Fatal("IsKind matched a kind that is not in the chain")
	}
	if kind, ok := KindOf(wrapped); !ok || kind != KindTransfer {
		t.Fatalf("KindOf = %v, %v; want transfer", kind, ok)
	}
}
