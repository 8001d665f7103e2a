package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/danmuck/s25_files/src/api/protocol"
	"github.com/danmuck/s25_files/src/api/transport"
	"github.com/danmuck/s25_files/src/journal"
	logs "github.com/danmuck/smplog"
)

const (
	shellPrompt        = "S25client$ "
	defaultHistorySize = 10
)

var errShellExit = errors.New("shell exit")

// Shell reads one command per line and runs it against the server.
// Failures are reported and the loop continues.
type Shell struct {
	client  *protocol.Client
	journal *journal.Journal // nil disables history
	destTag string
	out     io.Writer
}

func NewShell(client *protocol.Client, j *journal.Journal, destTag string, out io.Writer) *Shell {
	if destTag == "" {
		destTag = protocol.DefaultDestTag
	}
	return &Shell{client: client, journal: j, destTag: destTag, out: out}
}

func isInteractiveReader(input io.Reader) bool {
	file, ok := input.(*os.File)
	return ok && isInteractiveFile(file)
}

// Run processes lines from input until EOF or exit.
func (s *Shell) Run(input io.Reader) error {
	interactive := isInteractiveReader(input)
	scanner := bufio.NewScanner(input)
	for {
		if interactive {
			logs.Promptf("%s", shellPrompt)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read command: %w", err)
			}
			return nil
		}
		if err := s.Execute(scanner.Text()); errors.Is(err, errShellExit) {
			return nil
		}
	}
}

// Execute runs a single command line. Only exit is returned as an error;
// everything else is reported in place.
func (s *Shell) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "uploadf":
		s.upload(args)
	case "downlf":
		s.download(args)
	case "removef":
		s.remove(args)
	case "history":
		s.history(args)
	case "help", "?":
		s.help()
	case "exit", "quit":
		return errShellExit
	default:
		logs.StatusWarn(fmt.Sprintf("unknown command %q, try help", cmd))
	}
	return nil
}

// parseUpload splits uploadf arguments into files and an optional trailing
// destination tag.
func parseUpload(args []string, fallback string) (string, []string) {
	dest := fallback
	if n := len(args); n > 1 && strings.HasPrefix(args[n-1], protocol.DefaultDestTag) {
		dest = args[n-1]
		args = args[:n-1]
	}
	return dest, args
}

func (s *Shell) upload(args []string) {
	if len(args) == 0 {
		logs.StatusWarn("usage: uploadf <f1> [f2] [f3] [~/S1[/subdir]]")
		return
	}
	dest, files := parseUpload(args, s.destTag)

	res, err := s.client.Upload(dest, files...)
	s.record(protocol.Upload, files, res, err)
	if err != nil {
		logs.Errorf(err, "upload failed")
		return
	}
	for _, u := range res.Uploads {
		fmt.Fprintf(s.out, "Uploaded %s (%d bytes)\n", u.Name, u.Size)
	}
}

func (s *Shell) download(args []string) {
	if len(args) == 0 {
		logs.StatusWarn("usage: downlf <path1> [path2]")
		return
	}

	res, err := s.client.Download(args...)
	s.record(protocol.Download, args, res, err)
	if res != nil {
		for _, d := range res.Downloads {
			if d.Err != nil {
				logs.Errorf(d.Err, "downlf failed: %s", d.Requested)
				continue
			}
			fmt.Fprintf(s.out, "Downloaded: %s (%d bytes)\n", d.Name, d.Size)
		}
	}
	if err != nil {
		logs.Errorf(err, "downlf failed")
	}
}

func (s *Shell) remove(args []string) {
	if len(args) == 0 {
		logs.StatusWarn("usage: removef <path1> [path2]")
		return
	}

	res, err := s.client.Remove(args...)
	s.record(protocol.Remove, args, res, err)
	if res != nil {
		for _, r := range res.Removals {
			status := "not found"
			if r.Removed {
				status = "removed"
			}
			fmt.Fprintf(s.out, "%s: %s\n", r.Path, status)
		}
	}
	if err != nil {
		logs.Errorf(err, "remove failed")
	}
}

func (s *Shell) history(args []string) {
	if s.journal == nil {
		logs.StatusWarn("history is disabled (no journal)")
		return
	}
	n := defaultHistorySize
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed < 0 {
			logs.StatusWarn("usage: history [n]")
			return
		}
		n = parsed
	}

	entries, err := s.journal.Tail(n)
	if err != nil {
		logs.Errorf(err, "history failed")
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "no history yet")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-8s %-9s %s (%s)",
			e.At.Local().Format("2006-01-02 15:04:05"), e.Op, e.Status, e.Item, formatBytes(uint64(max(e.Bytes, 0))))
		if e.Err != "" {
			line += "  " + e.Err
		}
		fmt.Fprintln(s.out, line)
	}
}

func (s *Shell) help() {
	logs.Titlef("\n--[ s25 client | %s ]--\n\n", s.client.Addr())
	logs.Menuf("  uploadf <f1> [f2] [f3] [~/S1[/subdir]] 	(send up to %d files, default %s)\n", protocol.MaxUploadFiles, s.destTag)
	logs.Menuf("  downlf <path1> [path2] 	(fetch up to %d files into %s)\n", protocol.MaxPaths, s.client.Engine.DownloadDir)
	logs.Menuf("  removef <path1> [path2] 	(delete up to %d remote files)\n", protocol.MaxPaths)
	logs.Menuf("  history [n] 	(last n transfers, default %d)\n", defaultHistorySize)
	logs.Menuf("  exit | quit\n")
	logs.Printf("\n")
}

// record journals one entry per item: processed items with their outcome,
// unprocessed ones as failed when the batch failed.
func (s *Shell) record(cmd protocol.Command, items []string, res *protocol.Result, err error) {
	if s.journal == nil {
		return
	}

	remote := s.client.Addr()
	var entries []journal.Entry
	if res != nil {
		for _, u := range res.Uploads {
			entries = append(entries, journal.Entry{Op: cmd.String(), Remote: remote, Item: u.Name, Bytes: u.Size, Status: journal.StatusOK})
		}
		for _, d := range res.Downloads {
			e := journal.Entry{Op: cmd.String(), Remote: remote, Item: d.Requested, Bytes: d.Written, Status: journal.StatusOK}
			if d.Err != nil {
				e.Status, e.Err = journal.StatusFailed, d.Err.Error()
			}
			entries = append(entries, e)
		}
		for _, r := range res.Removals {
			e := journal.Entry{Op: cmd.String(), Remote: remote, Item: r.Path, Status: journal.StatusNotFound}
			if r.Removed {
				e.Status = journal.StatusRemoved
			}
			entries = append(entries, e)
		}
	}

	if err != nil {
		var terr *transport.Error
		msg := err.Error()
		if errors.As(err, &terr) && terr.Kind == transport.KindValidation {
			msg = "not sent: " + msg
		}
		for _, item := range items[min(res.Len(), len(items)):] {
			entries = append(entries, journal.Entry{Op: cmd.String(), Remote: remote, Item: item, Status: journal.StatusFailed, Err: msg})
		}
	}

	if werr := s.journal.Append(entries...); werr != nil {
		logs.Warnf("journal: %v", werr)
	}
}
