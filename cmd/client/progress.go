package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danmuck/s25_files/src/api/protocol"
)

// progressBar renders an ANSI transfer bar for one item.
type progressBar struct {
	dst      io.Writer
	label    string
	total    int64
	done     int64
	lastDraw time.Time
	started  time.Time
}

// newProgressFunc returns a protocol.ProgressFunc drawing to dst, or nil when
// dst is not a terminal.
func newProgressFunc(dst *os.File) protocol.ProgressFunc {
	if !isInteractiveFile(dst) {
		return nil
	}
	return func(label string, total int64) protocol.Progress {
		return &progressBar{dst: dst, label: label, total: total, started: time.Now()}
	}
}

func isInteractiveFile(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func (pb *progressBar) Add(n int64) {
	pb.done += n
	if time.Since(pb.lastDraw) < 50*time.Millisecond {
		return
	}
	pb.render()
	pb.lastDraw = time.Now()
}

func (pb *progressBar) Finish() {
	pb.render()
	fmt.Fprintf(pb.dst, "\r%s\r", strings.Repeat(" ", 80))
}

func (pb *progressBar) render() {
	elapsed := time.Since(pb.started)
	rate := float64(0)
	if elapsed.Seconds() > 0 {
		rate = float64(pb.done) / elapsed.Seconds()
	}

	pct := float64(100)
	if pb.total > 0 {
		pct = min(float64(pb.done)/float64(pb.total)*100, 100)
	}

	const barWidth = 30
	filled := barWidth
	if pb.total > 0 {
		filled = min(int(float64(barWidth)*float64(pb.done)/float64(pb.total)), barWidth)
	}
	bar := strings.Repeat("=", filled) + strings.Repeat("-", barWidth-filled)

	label := pb.label
	if len(label) > 12 {
		label = label[:12]
	}

	fmt.Fprintf(pb.dst, "\r  %-12s  [%s]  %5.1f%%  %s / %s  %s/s",
		label,
		bar,
		pct,
		formatBytes(uint64(pb.done)),
		formatBytes(uint64(pb.total)),
		formatBytes(uint64(rate)),
	)
}

func formatBytes(value uint64) string {
	if value == 0 {
		return "0 B"
	}

	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
	size := float64(value)
	unitIdx := 0
	for size >= 1024 && unitIdx < len(units)-1 {
		size /= 1024
		unitIdx++
	}

	if unitIdx == 0 {
		return fmt.Sprintf("%d %s", value, units[unitIdx])
	}

	formatted := fmt.Sprintf("%.2f", size)
	formatted = strings.TrimRight(strings.TrimRight(formatted, "0"), ".")
	return fmt.Sprintf("%s %s", formatted, units[unitIdx])
}
