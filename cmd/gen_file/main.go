// gen_file writes upload fixtures of a given size.
//
// Usage:
//
//	go run ./cmd/gen_file -s <size> [-n name] [-d dir]
//
// Size accepts suffixes: B, KB, MB, GB (e.g., "256MB", "1GB", "65536").
// The name must carry an extension the client will upload. An existing file
// of the requested size is reused.
package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/danmuck/s25_files/cmd/internal/logcfg"
	"github.com/danmuck/s25_files/src/policy"
	logs "github.com/danmuck/smplog"
)

const defaultFixtureDir = "local/upload"

func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %d", n)
	}
	return n * multiplier, nil
}

func sizeLabel(size int64) string {
	switch {
	case size > 0 && size%(1<<30) == 0:
		return fmt.Sprintf("%dGB", size>>30)
	case size > 0 && size%(1<<20) == 0:
		return fmt.Sprintf("%dMB", size>>20)
	case size > 0 && size%(1<<10) == 0:
		return fmt.Sprintf("%dKB", size>>10)
	default:
		return fmt.Sprintf("%dB", size)
	}
}

// fixturePath picks the output path and checks the name against the upload policy.
func fixturePath(dir, name string, size int64) (string, error) {
	if name == "" {
		name = fmt.Sprintf("test_%s.txt", sizeLabel(size))
	}
	if err := policy.NewFilter(nil).CheckName(name); err != nil {
		return "", fmt.Errorf("%q would be refused by the client: %w", name, err)
	}
	return filepath.Join(dir, name), nil
}

func writeRandom(path string, size int64) error {
	if info, err := os.Stat(path); err == nil && info.Size() == size {
		logs.Infof("Reusing existing file: %s (%d bytes)", path, size)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	const chunkSize = 4 << 20
	buf := make([]byte, chunkSize)
	for remaining := size; remaining > 0; {
		n := min(remaining, int64(chunkSize))
		if _, err := rand.Read(buf[:n]); err != nil {
			return fmt.Errorf("failed to generate data: %w", err)
		}
		if _, err := f.Write(buf[:n]); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		remaining -= n
	}
	return nil
}

func main() {
	logs.Configure(logcfg.Load())

	args := argparse.NewParser("gen_file", "Generate upload fixtures")
	sizeArg := args.String("s", "size", &argparse.Options{Required: true, Help: "Size with optional B/KB/MB/GB suffix"})
	name := args.String("n", "name", &argparse.Options{Required: false, Help: "File name (default test_<size>.txt)"})
	dir := args.String("d", "dir", &argparse.Options{Required: false, Help: "Output directory", Default: defaultFixtureDir})

	if err := args.Parse(os.Args); err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	size, err := parseSize(*sizeArg)
	if err != nil {
		logs.Fatalf(err, "Invalid size")
	}
	path, err := fixturePath(*dir, *name, size)
	if err != nil {
		logs.Fatalf(err, "Invalid name")
	}
	if err := writeRandom(path, size); err != nil {
		logs.Fatalf(err, "Failed to generate %s", path)
	}
	logs.Infof("Generated: %s (%d bytes)", path, size)
}
