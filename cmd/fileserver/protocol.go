package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danmuck/s25_files/src/api/protocol"
)

// maxBatchItems bounds the count field the server will honor.
const maxBatchItems = 64

var (
	errForeignTag   = errors.New("path must start with " + protocol.DefaultDestTag)
	errEscapesRoot  = errors.New("path escapes the storage root")
	errNeedFilePath = errors.New("path names no file")
)

// resolveRemote maps "~/S1" or "~/S1/<rel>" onto root. The result is always
// root itself or a path inside it.
func resolveRemote(root, remote string) (string, error) {
	rest, ok := strings.CutPrefix(remote, protocol.DefaultDestTag)
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return "", fmt.Errorf("%q: %w", remote, errForeignTag)
	}

	rel := filepath.Clean("/" + strings.TrimPrefix(rest, "/"))
	resolved := filepath.Join(root, rel)

	within, err := filepath.Rel(root, resolved)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", remote, errEscapesRoot)
	}
	return resolved, nil
}

// resolveRemoteFile is resolveRemote for paths that must name a file below root.
func resolveRemoteFile(root, remote string) (string, error) {
	resolved, err := resolveRemote(root, remote)
	if err != nil {
		return "", err
	}
	if filepath.Clean(resolved) == filepath.Clean(root) {
		return "", fmt.Errorf("%q: %w", remote, errNeedFilePath)
	}
	return resolved, nil
}

func checkCount(n int32) error {
	if n < 1 || n > maxBatchItems {
		return fmt.Errorf("item count %d out of range [1, %d]", n, maxBatchItems)
	}
	return nil
}
