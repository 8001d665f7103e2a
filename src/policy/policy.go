// Package policy holds the checks a file must pass before it may be uploaded:
// a plain basename and an allow-listed extension.
package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultExtensions is the upload allow-list: plain text, PDF, C source, zip archive.
var DefaultExtensions = []string{".txt", ".pdf", ".c", ".zip"}

var (
	ErrEmptyName     = errors.New("empty file name")
	ErrPathSeparator = errors.New("path separators not allowed, pass basenames only")
	ErrReservedName  = errors.New("reserved file name")
	ErrExtension     = errors.New("extension not allowed")
	ErrNotRegular    = errors.New("not a regular file")
)

// Filter is a fixed extension allow-list. Matching is case-sensitive and exact.
type Filter struct {
	extensions map[string]struct{}
}

// NewFilter builds a filter from extensions; an empty list selects
// DefaultExtensions. A missing leading dot is added.
func NewFilter(extensions []string) *Filter {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	f := &Filter{extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions[ext] = struct{}{}
	}
	return f
}

var defaultFilter = NewFilter(nil)

// IsAllowedExtension checks name against DefaultExtensions.
func IsAllowedExtension(name string) bool {
	return defaultFilter.IsAllowedExtension(name)
}

// IsAllowedExtension reports whether the final '.'-delimited suffix of name
// is on the allow-list.
func (f *Filter) IsAllowedExtension(name string) bool {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return false
	}
	_, ok := f.extensions[name[dot:]]
	return ok
}

// Extensions returns the allow-list in no particular order.
func (f *Filter) Extensions() []string {
	out := make([]string, 0, len(f.extensions))
	for ext := range f.extensions {
		out = append(out, ext)
	}
	return out
}

// CheckBasename rejects names that carry any directory component.
func CheckBasename(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, os.PathSeparator) {
		return fmt.Errorf("%w: %s", ErrPathSeparator, name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	return nil
}

// CheckName applies the basename rule, then the extension allow-list.
func (f *Filter) CheckName(name string) error {
	if err := CheckBasename(name); err != nil {
		return err
	}
	if !f.IsAllowedExtension(name) {
		return fmt.Errorf("%w: %s", ErrExtension, name)
	}
	return nil
}

// BaseName strips every directory component from a '/'-separated path.
func BaseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
