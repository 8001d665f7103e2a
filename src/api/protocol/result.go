package protocol

// UploadResult is one file sent in full.
type UploadResult struct {
	Name string
	Size int64
}

// DownloadResult is one item received from the server. Err is set when the
// payload could not be stored locally; the bytes were still drained.
type DownloadResult struct {
	Requested string // path as sent
	Name      string // name returned by the server
	LocalPath string
	Size      int64
	Written   int64
	Err       error
}

// RemovalResult is the server's answer for one path.
type RemovalResult struct {
	Path    string
	Removed bool
}

// Result collects the per-item outcomes of one batch, in request order.
// Only the slice matching Command is populated.
type Result struct {
	Command   Command
	Uploads   []UploadResult
	Downloads []DownloadResult
	Removals  []RemovalResult
}

// Len is the number of items processed so far.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	switch r.Command {
	case Upload:
		return len(r.Uploads)
	case Download:
		return len(r.Downloads)
	case Remove:
		return len(r.Removals)
	}
	return 0
}
