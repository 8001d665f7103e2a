package protocol

import (
	"fmt"

	"github.com/danmuck/s25_files/src/api/transport"
)

const (
	DefaultDestTag   = "~/S1" // destination tag sent when the caller names none
	MaxUploadFiles   = 3
	MaxPaths         = 2
	MaxNameLength    = 2048 // sanity bound on any received name or path
	DefaultChunkSize = 4096
)

// Request is one batch: an UploadRequest, DownloadRequest or RemoveRequest.
type Request interface {
	Command() Command
	// Items lists the batch items in wire order.
	Items() []string
	validate() error
}

// UploadRequest sends 1..3 local files, given as basenames, to DestTag.
type UploadRequest struct {
	DestTag string
	Files   []string
}

// DownloadRequest fetches 1..2 remote paths.
type DownloadRequest struct {
	Paths []string
}

// RemoveRequest deletes 1..2 remote paths.
type RemoveRequest struct {
	Paths []string
}

func (r UploadRequest) Command() Command   { return Upload }
func (r DownloadRequest) Command() Command { return Download }
func (r RemoveRequest) Command() Command   { return Remove }

func (r UploadRequest) Items() []string   { return r.Files }
func (r DownloadRequest) Items() []string { return r.Paths }
func (r RemoveRequest) Items() []string   { return r.Paths }

// Tag returns DestTag, or DefaultDestTag when it is empty.
func (r UploadRequest) Tag() string {
	if r.DestTag == "" {
		return DefaultDestTag
	}
	return r.DestTag
}

func (r UploadRequest) validate() error {
	if err := checkCount(Upload, len(r.Files), MaxUploadFiles); err != nil {
		return err
	}
	if len(r.Tag()) > MaxNameLength {
		return transport.NewError(transport.KindValidation, "upload", r.Tag(), fmt.Errorf("destination tag longer than %d bytes", MaxNameLength))
	}
	return nil
}

func (r DownloadRequest) validate() error {
	return checkPaths(Download, r.Paths)
}

func (r RemoveRequest) validate() error {
	return checkPaths(Remove, r.Paths)
}

func checkCount(c Command, n, max int) error {
	if n < 1 || n > max {
		return transport.NewError(transport.KindValidation, c.String(), "", fmt.Errorf("%d items requested, want 1..%d", n, max))
	}
	return nil
}

func checkPaths(c Command, paths []string) error {
	if err := checkCount(c, len(paths), MaxPaths); err != nil {
		return err
	}
	for _, p := range paths {
		if p == "" {
			return transport.NewError(transport.KindValidation, c.String(), p, fmt.Errorf("empty path"))
		}
		if len(p) > MaxNameLength {
			return transport.NewError(transport.KindValidation, c.String(), p, fmt.Errorf("path longer than %d bytes", MaxNameLength))
		}
	}
	return nil
}
