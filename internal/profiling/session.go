// Package profiling captures pprof and execution-trace data for a
// single CLI invocation. A Session is armed from command-line flags,
// started before the command runs, and stopped after it returns.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Session holds the profile outputs requested for one invocation.
// Empty paths disable the corresponding profile.
type Session struct {
	CPUPath   string
	HeapPath  string
	TracePath string

	cpuFile   *os.File
	traceFile *os.File
}

// Active reports whether any profile output was requested.
func (s *Session) Active() bool {
	return s.CPUPath != "" || s.HeapPath != "" || s.TracePath != ""
}

// Start begins CPU profiling and execution tracing as requested. The
// heap profile is a snapshot and is written by Stop instead.
func (s *Session) Start() error {
	if s.CPUPath != "" {
		f, err := os.Create(s.CPUPath)
		if err != nil {
			return fmt.Errorf("create cpu profile %s: %w", s.CPUPath, err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("start cpu profile: %w", err)
		}
		s.cpuFile = f
	}

	if s.TracePath != "" {
		f, err := os.Create(s.TracePath)
		if err != nil {
			s.stopCPU()
			return fmt.Errorf("create trace %s: %w", s.TracePath, err)
		}
		if err := trace.Start(f); err != nil {
			f.Close()
			s.stopCPU()
			return fmt.Errorf("start trace: %w", err)
		}
		s.traceFile = f
	}

	return nil
}

// Stop flushes the running profiles and writes the heap snapshot if
// one was requested. Safe to call when Start was never called.
func (s *Session) Stop() error {
	s.stopCPU()

	if s.traceFile != nil {
		trace.Stop()
		if err := s.traceFile.Close(); err != nil {
			return fmt.Errorf("close trace: %w", err)
		}
		s.traceFile = nil
	}

	if s.HeapPath != "" {
		if err := writeHeap(s.HeapPath); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) stopCPU() {
	if s.cpuFile == nil {
		return
	}
	pprof.StopCPUProfile()
	s.cpuFile.Close()
	s.cpuFile = nil
}

func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heap profile %s: %w", path, err)
	}
	defer f.Close()

	// GC first so the snapshot reflects live objects.
	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	return nil
}
