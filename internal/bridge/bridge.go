// Package bridge implements the C7 supervisor bridge: creating the pipe a
// collector reads from, redirecting the current process's own standard
// output/error into its write end, and keeping a narrow escape hatch to
// the preserved original standard error for fatal in-core diagnostics.
//
// Grounded on syslogger.c's SysLogger_Start fork-and-redirect sequence and
// the write_stderr macro (elog.c) — the exact behavior spec.md §4.7 and
// §7 describe. No example repo performs this POSIX fork/dup2 dance in Go,
// so the mechanics are original code built directly against
// golang.org/x/sys/unix rather than adapted from a pack file.
package bridge

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Bridge owns the pipe a collector reads framed log data from, and the
// duplicated, preserved standard-error descriptor fatal diagnostics can
// still reach after the process's own stderr has been redirected.
type Bridge struct {
	ReadEnd  *os.File
	WriteEnd *os.File

	preservedStderr *os.File
}

// New creates the anonymous pipe the supervisor owns across collector
// restarts, per spec.md §4.7: "the supervisor creates the pipe before
// forking the collector, so that restarts preserve producer write ends."
func New() (*Bridge, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("bridge: creating pipe: %w", err)
	}
	return &Bridge{ReadEnd: r, WriteEnd: w}, nil
}

// RedirectStandardStreams duplicates the write end of the pipe onto this
// process's stdout and stderr file descriptors, exactly once. It preserves
// the original stderr descriptor first so WriteStderr can still reach the
// terminal/log after the redirect.
func (b *Bridge) RedirectStandardStreams() error {
	if b.preservedStderr != nil {
		return nil // already done; matches redirection_done's latch semantics
	}
	preserved, err := dupFD(int(os.Stderr.Fd()))
	if err != nil {
		return fmt.Errorf("bridge: preserving stderr: %w", err)
	}
	b.preservedStderr = preserved

	if err := unix.Dup2(int(b.WriteEnd.Fd()), int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("bridge: redirecting stdout: %w", err)
	}
	if err := unix.Dup2(int(b.WriteEnd.Fd()), int(os.Stderr.Fd())); err != nil {
		return fmt.Errorf("bridge: redirecting stderr: %w", err)
	}
	return nil
}

// RedirectOwnStderrToNull points this process's own stderr at the null
// device after startup, per spec.md §4.7, so diagnostics the collector
// itself emits through the normal path do not recurse into its own pipe.
func (b *Bridge) RedirectOwnStderrToNull() error {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer devNull.Close()
	return unix.Dup2(int(devNull.Fd()), int(os.Stderr.Fd()))
}

// WriteStderr writes directly to the preserved original stderr descriptor,
// bypassing whatever os.Stderr currently points at. This is the narrow
// escape hatch spec.md §4.7/§7 describe for fatal in-core errors that must
// not recurse through the collector's own pipe.
func (b *Bridge) WriteStderr(msg string) {
	if b.preservedStderr == nil {
		return
	}
	_, _ = b.preservedStderr.WriteString(msg)
}

// CloseUnusedEnd closes the end of the pipe this side does not own, per
// spec.md §4.7: "the collector closes its copy of every write end it does
// not own." Pass true when called from the collector side (close the
// supervisor's copy of the write end is not ours to hold), false from the
// supervisor side.
func (b *Bridge) CloseUnusedEnd(isCollectorSide bool) error {
	if isCollectorSide {
		return b.WriteEnd.Close()
	}
	return nil
}

func dupFD(fd int) (*os.File, error) {
	newFD, err := unix.Dup(fd)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(newFD), "preserved-stderr"), nil
}
