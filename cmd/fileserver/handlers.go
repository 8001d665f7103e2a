package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/danmuck/s25_files/src/api/protocol"
	"github.com/danmuck/s25_files/src/api/transport"
	"github.com/danmuck/s25_files/src/policy"
	logs "github.com/danmuck/smplog"
)

// Server answers one command per connection against files under root.
type Server struct {
	root      string
	order     binary.ByteOrder
	chunkSize int
}

func NewServer(root string, order binary.ByteOrder, chunkSize int) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = protocol.DefaultChunkSize
	}
	return &Server{root: abs, order: order, chunkSize: chunkSize}, nil
}

func (s *Server) Root() string {
	return s.root
}

// handleConn is a transport.ConnHandler; the handler closes conn.
func (s *Server) handleConn(conn net.Conn) {
	peer := conn.RemoteAddr().String()
	f := transport.NewFramer(conn, s.order)

	tag, err := f.RecvTag()
	if err != nil {
		logs.Warnf("%s: read command: %v", peer, err)
		return
	}
	cmd, err := protocol.ParseCommand(tag)
	if err != nil {
		logs.Warnf("%s: %v", peer, err)
		return
	}
	count, err := f.RecvInt32()
	if err != nil {
		logs.Warnf("%s: read count: %v", peer, err)
		return
	}
	if err := checkCount(count); err != nil {
		logs.Warnf("%s: %s: %v", peer, cmd, err)
		return
	}

	logs.Debugf("handleConn(%s): %s x%d", peer, cmd, count)
	switch cmd {
	case protocol.Upload:
		err = s.handleUpload(f, int(count))
	case protocol.Download:
		err = s.handleDownload(f, int(count))
	case protocol.Remove:
		err = s.handleRemove(f, int(count))
	}
	if err != nil {
		logs.Warnf("%s: %s: %v", peer, cmd, err)
	}
}

// UPLD item: dest tag, name, int64 size, size raw bytes. No reply.
func (s *Server) handleUpload(f *transport.Framer, count int) error {
	buf := make([]byte, s.chunkSize)
	for i := 0; i < count; i++ {
		dest, err := f.RecvString(protocol.MaxNameLength)
		if err != nil {
			return err
		}
		name, err := f.RecvString(protocol.MaxNameLength)
		if err != nil {
			return err
		}
		size, err := f.RecvInt64()
		if err != nil {
			return err
		}
		if size < 0 {
			return fmt.Errorf("item %d: negative size %d", i, size)
		}

		path, err := s.uploadPath(dest, name)
		if err != nil {
			logs.Warnf("upload %s to %s rejected: %v (draining %d bytes)", name, dest, err, size)
			if err := f.Discard(size, buf); err != nil {
				return err
			}
			continue
		}
		if err := s.receiveFile(f, path, size, buf); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) uploadPath(dest, name string) (string, error) {
	if err := policy.CheckBasename(name); err != nil {
		return "", err
	}
	dir, err := resolveRemote(s.root, dest)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// receiveFile stores exactly size bytes at path. A local write failure
// drains the rest; only stream failures are returned.
func (s *Server) receiveFile(f *transport.Framer, path string, size int64, buf []byte) error {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		logs.Warnf("create %s: %v (draining %d bytes)", path, err, size)
		return f.Discard(size, buf)
	}
	defer dst.Close()

	var werr error
	left := size
	for left > 0 {
		chunk := buf[:min(left, int64(len(buf)))]
		if err := f.ReadFull(chunk); err != nil {
			return err
		}
		left -= int64(len(chunk))
		if werr == nil {
			_, werr = dst.Write(chunk)
		}
	}
	if werr != nil {
		logs.Warnf("write %s: %v", path, werr)
		return nil
	}
	logs.Infof("stored %s (%d bytes)", path, size)
	return nil
}

// DOWN: all paths first, then per path name, int64 size and the bytes.
// A missing file is answered with name length -1 and ends the reply.
func (s *Server) handleDownload(f *transport.Framer, count int) error {
	paths, err := recvPaths(f, count)
	if err != nil {
		return err
	}

	buf := make([]byte, s.chunkSize)
	for _, p := range paths {
		src, info, err := s.openDownload(p)
		if err != nil {
			logs.Warnf("download %s: %v", p, err)
			return f.SendInt32(-1)
		}
		err = s.sendFile(f, src, info, buf)
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) openDownload(remote string) (*os.File, os.FileInfo, error) {
	path, err := resolveRemoteFile(s.root, remote)
	if err != nil {
		return nil, nil, err
	}
	src, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := src.Stat()
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		src.Close()
		return nil, nil, policy.ErrNotRegular
	}
	return src, info, nil
}

func (s *Server) sendFile(f *transport.Framer, src io.Reader, info os.FileInfo, buf []byte) error {
	if err := f.SendString(info.Name()); err != nil {
		return err
	}
	size := info.Size()
	if err := f.SendInt64(size); err != nil {
		return err
	}

	left := size
	for left > 0 {
		chunk := buf[:min(left, int64(len(buf)))]
		if _, err := io.ReadFull(src, chunk); err != nil {
			return fmt.Errorf("read %s with %d bytes left: %w", info.Name(), left, err)
		}
		if err := f.WriteAll(chunk); err != nil {
			return err
		}
		left -= int64(len(chunk))
	}
	logs.Infof("sent %s (%d bytes)", info.Name(), size)
	return nil
}

// REMF: all paths, then one int32 flag per path (1 removed, 0 not).
func (s *Server) handleRemove(f *transport.Framer, count int) error {
	paths, err := recvPaths(f, count)
	if err != nil {
		return err
	}
	for _, p := range paths {
		var flag int32
		if err := s.removeFile(p); err != nil {
			logs.Warnf("remove %s: %v", p, err)
		} else {
			flag = 1
			logs.Infof("removed %s", p)
		}
		if err := f.SendInt32(flag); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) removeFile(remote string) error {
	path, err := resolveRemoteFile(s.root, remote)
	if err != nil {
		return err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return policy.ErrNotRegular
	}
	return os.Remove(path)
}

func recvPaths(f *transport.Framer, count int) ([]string, error) {
	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		p, err := f.RecvString(protocol.MaxNameLength)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
