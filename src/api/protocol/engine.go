package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/danmuck/s25_files/src/api/transport"
	"github.com/danmuck/s25_files/src/policy"
	logs "github.com/danmuck/smplog"
)

// Progress receives payload byte counts for one item.
type Progress interface {
	Add(n int64)
	Finish()
}

// ProgressFunc starts tracking one item of total bytes. It may return nil.
type ProgressFunc func(label string, total int64) Progress

type noProgress struct{}

func (noProgress) Add(int64) {}
func (noProgress) Finish()   {}

// Engine runs one batch over an open stream. Items are strictly serialized:
// item i+1 starts only after item i has fully crossed the wire.
// The zero value works with defaults for every field.
type Engine struct {
	ChunkSize   int              // payload buffer, reused across items
	Order       binary.ByteOrder // integer layout; nil = transport.DefaultByteOrder
	Filter      *policy.Filter   // upload allow-list; nil = policy.DefaultExtensions
	Files       LocalFS          // nil = OSFS
	DownloadDir string           // where received files are written; "" = working directory
	Progress    ProgressFunc     // optional
}

// NewEngine returns an Engine with the default chunk size, byte order and allow-list.
func NewEngine() *Engine {
	return &Engine{
		ChunkSize: DefaultChunkSize,
		Order:     transport.DefaultByteOrder,
		Filter:    policy.NewFilter(nil),
		Files:     OSFS{},
	}
}

// uploadItem is a file that passed every upload precondition.
type uploadItem struct {
	path string
	name string
	size int64
}

// Validate checks req without touching the network: item counts, and for
// uploads the basename rule, the extension allow-list and a successful stat
// of every file.
func (e *Engine) Validate(req Request) error {
	_, _, err := e.prepare(req)
	return err
}

// Do writes req to rw and reads the replies. Download and remove return the
// results read before a failure together with the error; an aborted upload
// returns no result.
func (e *Engine) Do(rw io.ReadWriter, req Request) (*Result, error) {
	req, items, err := e.prepare(req)
	if err != nil {
		return nil, err
	}

	f := transport.NewFramer(rw, e.Order)
	buf := make([]byte, e.chunkSize())

	switch r := req.(type) {
	case UploadRequest:
		return e.upload(f, r.Tag(), items, buf)
	case DownloadRequest:
		return e.download(f, r.Paths, buf)
	case RemoveRequest:
		return e.remove(f, r.Paths)
	}
	return nil, transport.NewError(transport.KindValidation, "", "", fmt.Errorf("unsupported request %T", req))
}

func (e *Engine) prepare(req Request) (Request, []uploadItem, error) {
	req = deref(req)
	if req == nil {
		return nil, nil, transport.NewError(transport.KindValidation, "", "", errors.New("nil request"))
	}
	if err := req.validate(); err != nil {
		return nil, nil, err
	}

	up, ok := req.(UploadRequest)
	if !ok {
		return req, nil, nil
	}

	items := make([]uploadItem, 0, len(up.Files))
	for _, file := range up.Files {
		if err := e.filter().CheckName(file); err != nil {
			return nil, nil, transport.NewError(transport.KindValidation, "upload", file, err)
		}
		info, err := e.files().Stat(file)
		if err != nil {
			return nil, nil, transport.NewError(transport.KindValidation, "upload", file, fmt.Errorf("stat: %w", err))
		}
		if !info.Mode().IsRegular() {
			return nil, nil, transport.NewError(transport.KindValidation, "upload", file, policy.ErrNotRegular)
		}
		items = append(items, uploadItem{
			path: file,
			name: policy.BaseName(file),
			size: info.Size(),
		})
	}
	return req, items, nil
}

func deref(req Request) Request {
	switch r := req.(type) {
	case *UploadRequest:
		if r == nil {
			return nil
		}
		return *r
	case *DownloadRequest:
		if r == nil {
			return nil
		}
		return *r
	case *RemoveRequest:
		if r == nil {
			return nil
		}
		return *r
	}
	return req
}

// begin writes the command tag and the item count.
func (e *Engine) begin(f *transport.Framer, c Command, count int) error {
	if err := f.SendTag(c.Tag()); err != nil {
		return err
	}
	return f.SendInt32(int32(count))
}

func (e *Engine) upload(f *transport.Framer, tag string, items []uploadItem, buf []byte) (*Result, error) {
	if err := e.begin(f, Upload, len(items)); err != nil {
		return nil, transport.NewError(transport.KindTransfer, "upload", "", err)
	}

	res := &Result{Command: Upload}
	for _, item := range items {
		if err := e.uploadOne(f, tag, item, buf); err != nil {
			return nil, transport.NewError(transport.KindTransfer, "upload", item.name, err)
		}
		logs.Debugf("upload(%s): %d bytes -> %s", item.name, item.size, tag)
		res.Uploads = append(res.Uploads, UploadResult{Name: item.name, Size: item.size})
	}
	return res, nil
}

func (e *Engine) uploadOne(f *transport.Framer, tag string, item uploadItem, buf []byte) error {
	src, err := e.files().Open(item.path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer src.Close()

	if err := f.SendString(tag); err != nil {
		return err
	}
	if err := f.SendString(item.name); err != nil {
		return err
	}
	if err := f.SendInt64(item.size); err != nil {
		return err
	}

	p := e.track(item.name, item.size)
	defer p.Finish()

	left := item.size
	for left > 0 {
		chunk := buf
		if left < int64(len(chunk)) {
			chunk = chunk[:left]
		}
		n, rerr := src.Read(chunk)
		if n > 0 {
			if err := f.WriteAll(chunk[:n]); err != nil {
				return err
			}
			left -= int64(n)
			p.Add(int64(n))
		}
		if left == 0 {
			break
		}
		if rerr != nil {
			if rerr == io.EOF {
				rerr = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("read source, %d of %d bytes left: %w", left, item.size, rerr)
		}
		if n <= 0 {
			return fmt.Errorf("read source, %d of %d bytes left: %w", left, item.size, io.ErrNoProgress)
		}
	}
	return nil
}

func (e *Engine) download(f *transport.Framer, paths []string, buf []byte) (*Result, error) {
	res := &Result{Command: Download}
	if err := e.sendPaths(f, Download, paths); err != nil {
		return res, err
	}

	for _, p := range paths {
		nameLen, err := f.RecvInt32()
		if err != nil {
			return res, annotate(err, "download", p)
		}
		// A bad length desynchronizes the stream: stop consuming.
		if nameLen <= 0 || nameLen > MaxNameLength {
			return res, transport.NewError(transport.KindProtocol, "download", p,
				fmt.Errorf("name length %d out of range [1, %d]", nameLen, MaxNameLength))
		}
		name, err := f.ReadAll(int(nameLen))
		if err != nil {
			return res, annotate(err, "download", p)
		}
		size, err := f.RecvInt64()
		if err != nil {
			return res, annotate(err, "download", p)
		}
		if size < 0 {
			return res, transport.NewError(transport.KindProtocol, "download", p,
				fmt.Errorf("negative payload size %d", size))
		}

		item := DownloadResult{Requested: p, Name: string(name), Size: size}
		if err := e.receive(f, &item, buf); err != nil {
			return res, annotate(err, "download", p)
		}
		logs.Debugf("download(%s): %s, %d of %d bytes stored", p, item.Name, item.Written, item.Size)
		res.Downloads = append(res.Downloads, item)
	}
	return res, nil
}

// receive moves exactly item.Size payload bytes off the stream. Local
// failures are recorded on item and the remaining bytes are drained; only
// stream failures are returned.
func (e *Engine) receive(f *transport.Framer, item *DownloadResult, buf []byte) error {
	dst, err := e.createLocal(item)
	if err != nil {
		item.Err = err
		logs.Warnf("download %s: %v (draining %d bytes)", item.Name, err, item.Size)
		return f.Discard(item.Size, buf)
	}

	p := e.track(item.Name, item.Size)
	var werr error
	defer func() {
		p.Finish()
		if cerr := dst.Close(); cerr != nil && werr == nil {
			werr = cerr
		}
		if werr != nil {
			item.Err = transport.NewError(transport.KindIO, "download", item.Name, werr)
		}
	}()

	left := item.Size
	for left > 0 {
		chunk := buf
		if left < int64(len(chunk)) {
			chunk = chunk[:left]
		}
		if err := f.ReadFull(chunk); err != nil {
			return err
		}
		left -= int64(len(chunk))
		if werr != nil {
			continue
		}
		n, err := dst.Write(chunk)
		item.Written += int64(n)
		p.Add(int64(n))
		if err == nil && n < len(chunk) {
			err = io.ErrShortWrite
		}
		if err != nil {
			werr = err
			logs.Warnf("download %s: write %s: %v (draining %d bytes)", item.Name, item.LocalPath, err, left)
		}
	}
	return nil
}

func (e *Engine) createLocal(item *DownloadResult) (io.WriteCloser, error) {
	if err := policy.CheckBasename(item.Name); err != nil {
		return nil, transport.NewError(transport.KindValidation, "download", item.Name, err)
	}
	item.LocalPath = filepath.Join(e.DownloadDir, item.Name)
	dst, err := e.files().Create(item.LocalPath)
	if err != nil {
		return nil, transport.NewError(transport.KindIO, "download", item.Name, fmt.Errorf("create: %w", err))
	}
	return dst, nil
}

func (e *Engine) remove(f *transport.Framer, paths []string) (*Result, error) {
	res := &Result{Command: Remove}
	if err := e.sendPaths(f, Remove, paths); err != nil {
		return res, err
	}

	for _, p := range paths {
		flag, err := f.RecvInt32()
		if err != nil {
			return res, annotate(err, "remove", p)
		}
		res.Removals = append(res.Removals, RemovalResult{Path: p, Removed: flag != 0})
	}
	return res, nil
}

func (e *Engine) sendPaths(f *transport.Framer, c Command, paths []string) error {
	if err := e.begin(f, c, len(paths)); err != nil {
		return annotate(err, c.String(), "")
	}
	for _, p := range paths {
		if err := f.SendString(p); err != nil {
			return annotate(err, c.String(), p)
		}
	}
	return nil
}

// annotate re-labels a framing error with the operation and item it hit.
func annotate(err error, op, item string) error {
	var e *transport.Error
	if errors.As(err, &e) {
		return transport.NewError(e.Kind, op, item, e.Err)
	}
	return transport.NewError(transport.KindIO, op, item, err)
}

func (e *Engine) track(label string, total int64) Progress {
	if e.Progress == nil {
		return noProgress{}
	}
	if p := e.Progress(label, total); p != nil {
		return p
	}
	return noProgress{}
}

func (e *Engine) chunkSize() int {
	if e.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return e.ChunkSize
}

func (e *Engine) filter() *policy.Filter {
	if e.Filter == nil {
		return policy.NewFilter(nil)
	}
	return e.Filter
}

func (e *Engine) files() LocalFS {
	if e.Files == nil {
		return OSFS{}
	}
	return e.Files
}
