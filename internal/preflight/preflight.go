// Package preflight checks the environment before an indexing run.
// Indexing writes several files under the data directory at once, so
// it is worth failing early on a full disk or a read-only directory
// instead of partway through a batch.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// MinFreeBytes is the free-space floor below which indexing refuses
// to start.
const MinFreeBytes = 100 << 20 // 100 MiB

// minOpenFiles is the soft file-descriptor limit below which the
// combined SQLite, bleve, and vector stores may run out of handles.
const minOpenFiles = 1024

// Status classifies a check outcome.
type Status int

const (
	Pass Status = iota
	Warn
	Fail
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "pass"
	case Warn:
		return "warn"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Result is the outcome of one check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Run executes all checks against the data directory and returns the
// individual results. The error is non-nil when any check failed;
// warnings alone do not block.
func Run(dataDir string) ([]Result, error) {
	results := []Result{
		checkWritable(dataDir),
		checkDiskSpace(dataDir),
		checkOpenFiles(),
	}

	for _, r := range results {
		if r.Status == Fail {
			return results, fmt.Errorf("preflight %s: %s", r.Name, r.Message)
		}
	}
	return results, nil
}

func checkWritable(dataDir string) Result {
	r := Result{Name: "data_dir_writable"}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		r.Status = Fail
		r.Message = fmt.Sprintf("cannot create %s: %v", dataDir, err)
		return r
	}

	probe := filepath.Join(dataDir, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		r.Status = Fail
		r.Message = fmt.Sprintf("%s is not writable: %v", dataDir, err)
		return r
	}
	os.Remove(probe)

	r.Status = Pass
	r.Message = fmt.Sprintf("%s is writable", dataDir)
	return r
}

func checkDiskSpace(dataDir string) Result {
	r := Result{Name: "disk_space"}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dataDir, &stat); err != nil {
		r.Status = Fail
		r.Message = fmt.Sprintf("statfs %s: %v", dataDir, err)
		return r
	}

	free := stat.Bavail * uint64(stat.Bsize)
	r.Message = fmt.Sprintf("%s free", formatBytes(free))
	if free < MinFreeBytes {
		r.Status = Fail
		r.Message += fmt.Sprintf(" (need at least %s)", formatBytes(MinFreeBytes))
		return r
	}

	r.Status = Pass
	return r
}

func checkOpenFiles() Result {
	r := Result{Name: "open_files"}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		r.Status = Warn
		r.Message = fmt.Sprintf("cannot read file limit: %v", err)
		return r
	}

	r.Message = fmt.Sprintf("soft limit %d", lim.Cur)
	if lim.Cur < minOpenFiles {
		r.Status = Warn
		r.Message += fmt.Sprintf(" (recommended: %d or more)", minOpenFiles)
		return r
	}

	r.Status = Pass
	return r
}

func formatBytes(n uint64) string {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case n >= gib:
		return fmt.Sprintf("%.1f GiB", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.1f KiB", float64(n)/kib)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
