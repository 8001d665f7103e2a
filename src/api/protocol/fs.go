package protocol

import (
	"io"
	"io/fs"
	"os"
)

// LocalFS is the local byte source for uploads and sink for downloads.
type LocalFS interface {
	Stat(name string) (fs.FileInfo, error)
	Open(name string) (io.ReadCloser, error)   // read-only, sequential
	Create(name string) (io.WriteCloser, error) // create or truncate
}

// OSFS reads and writes the process's filesystem.
type OSFS struct{}

func (OSFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (OSFS) Open(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

func (OSFS) Create(name string) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
}
