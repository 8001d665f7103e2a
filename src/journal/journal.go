// Package journal keeps a local, append-only history of transfer outcomes.
// Each record is a protobuf Struct behind a 4-byte big-endian length header.
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	HeaderSize    = 4
	MaxRecordSize = 64 << 10
)

// Outcome labels written to Entry.Status.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusRemoved  = "removed"
	StatusNotFound = "not found"
)

var ErrRecordTooLarge = errors.New("journal record too large")

// Entry is one processed item.
type Entry struct {
	At     time.Time
	Op     string // upload, download, remove
	Remote string // host:port the command ran against
	Item   string
	Bytes  int64
	Status string
	Err    string
}

type Coder interface {
	Encode(Entry) ([]byte, error)
	Decode(io.Reader) (Entry, error)
}

// StructCoder frames entries as length-prefixed structpb.Struct messages.
type StructCoder struct{}

func (c StructCoder) Encode(e Entry) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"at":     e.At.UTC().Format(time.RFC3339Nano),
		"op":     e.Op,
		"remote": e.Remote,
		"item":   e.Item,
		"bytes":  e.Bytes,
		"status": e.Status,
		"err":    e.Err,
	})
	if err != nil {
		return nil, fmt.Errorf("build record: %w", err)
	}
	body, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	if len(body) > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(body))
	}

	out := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

// Decode reads one record. It returns io.EOF only at a clean record boundary.
func (c StructCoder) Decode(r io.Reader) (Entry, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Entry{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxRecordSize {
		return Entry{}, fmt.Errorf("%w: header says %d bytes", ErrRecordTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Entry{}, fmt.Errorf("read record body: %w", err)
	}

	st := &structpb.Struct{}
	if err := proto.Unmarshal(body, st); err != nil {
		return Entry{}, fmt.Errorf("unmarshal record: %w", err)
	}

	f := st.GetFields()
	e := Entry{
		Op:     f["op"].GetStringValue(),
		Remote: f["remote"].GetStringValue(),
		Item:   f["item"].GetStringValue(),
		Bytes:  int64(f["bytes"].GetNumberValue()),
		Status: f["status"].GetStringValue(),
		Err:    f["err"].GetStringValue(),
	}
	if at := f["at"].GetStringValue(); at != "" {
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return Entry{}, fmt.Errorf("record timestamp %q: %w", at, err)
		}
		e.At = parsed
	}
	return e, nil
}

// Journal appends entries to a single file. Safe for concurrent use.
type Journal struct {
	path  string
	coder Coder
	lock  sync.Mutex
}

// Open prepares a journal at path, creating its directory. The file itself
// is created on the first Append.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &Journal{path: path, coder: StructCoder{}}, nil
}

func (j *Journal) Path() string {
	return j.path
}

// Append writes entries in order. A zero At is stamped with the current time.
func (j *Journal) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var buf []byte
	now := time.Now()
	for _, e := range entries {
		if e.At.IsZero() {
			e.At = now
		}
		rec, err := j.coder.Encode(e)
		if err != nil {
			return err
		}
		buf = append(buf, rec...)
	}

	j.lock.Lock()
	defer j.lock.Unlock()

	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("failed to append journal: %w", err)
	}
	return nil
}

// Tail returns the last n entries, oldest first; n <= 0 returns all of them.
// A damaged trailing record ends the scan with what was read so far.
func (j *Journal) Tail(n int) ([]Entry, error) {
	j.lock.Lock()
	defer j.lock.Unlock()

	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var entries []Entry
	for {
		e, err := j.coder.Decode(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			logs.Warnf("journal %s: stopped after %d records: %v", j.path, len(entries), err)
			break
		}
		entries = append(entries, e)
		if n > 0 && len(entries) > n {
			entries = entries[1:]
		}
	}
	return entries, nil
}
