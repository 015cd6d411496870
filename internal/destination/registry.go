// Package destination holds the mapping from a destination kind to its
// currently open output file and the filename that file was opened under.
//
// Grounded on the teacher's AuditDriver/SyslogDriver registration idiom
// (a small named-kind lookup guarding a handle) generalized from a single
// driver slot to the fixed five-kind registry spec.md §3 describes; the
// handle-plus-last-name bookkeeping shape follows moby-moby's
// loggerutils/logfile.go LogFile struct.
package destination

import (
	"bufio"
	"io"
	"os"

	"github.com/sysloggerd/collector/internal/record"
)

// Slot holds one destination's open file handle and the filename it was
// most recently opened under. Invariant: File != nil iff Name != "".
// buf is non-nil when this slot was opened with full buffering
// (polar_enable_syslog_file_buffer, spec.md §6); a nil buf means every
// Write reaches the file's own write syscall immediately, the collector's
// equivalent of line buffering for a destination whose payloads never
// contain embedded newlines to flush on.
type Slot struct {
	File *os.File
	Name string

	buf *bufio.Writer
}

func (s *Slot) open() bool { return s.File != nil }

// closeLocked flushes any pending buffered bytes and closes the file. It
// is the shared teardown path for both Install and InstallBuffered
// replacing an existing slot.
func (s *Slot) closeLocked() error {
	var flushErr error
	if s.buf != nil {
		flushErr = s.buf.Flush()
		s.buf = nil
	}
	if s.File == nil {
		return flushErr
	}
	closeErr := s.File.Close()
	s.File = nil
	if closeErr != nil {
		return closeErr
	}
	return flushErr
}

// Registry is the C3 destination registry: a fixed map from record.Kind to
// its Slot. TEXT's slot is expected to be non-nil for the entire lifetime
// of a started collector; other slots come and go with configuration.
type Registry struct {
	slots [5]Slot // indexed by record.Kind
}

// New returns an empty registry. Callers must install the TEXT slot (via
// Install) before the first Write call; Resolve falls back to it for any
// unopened destination.
func New() *Registry {
	return &Registry{}
}

// Install replaces the slot for kind with an unbuffered file, closing
// (after flushing, if it was buffered) whatever was previously open
// there. Passing a nil file closes and clears the slot.
func (r *Registry) Install(kind record.Kind, f *os.File, name string) error {
	slot := &r.slots[kind]
	closeErr := slot.closeLocked()
	slot.File = f
	slot.Name = name
	return closeErr
}

// InstallBuffered is Install's full-buffering counterpart, used for AUDIT
// when polar_enable_syslog_file_buffer is set: writes accumulate in a
// bufio.Writer and only reach the file on Flush/FlushAll or the next
// rotation/close, instead of on every Write call.
func (r *Registry) InstallBuffered(kind record.Kind, f *os.File, name string) error {
	slot := &r.slots[kind]
	closeErr := slot.closeLocked()
	slot.File = f
	slot.Name = name
	if f != nil {
		slot.buf = bufio.NewWriter(f)
	}
	return closeErr
}

// Slot returns the current Slot for kind (whether or not it is open).
func (r *Registry) Slot(kind record.Kind) Slot {
	return r.slots[kind]
}

// Resolve returns the handle that a record bound for dest should actually
// be written to: dest's own file if open, otherwise TEXT's. It never
// returns nil once TEXT has been installed.
func (r *Registry) Resolve(dest record.Kind) *os.File {
	if s := &r.slots[dest]; s.open() {
		return s.File
	}
	return r.slots[record.Text].File
}

// resolveSlot is Resolve's unexported counterpart, returning the backing
// Slot (buffered or not) rather than just its *os.File, so Write can
// choose between the buffer and the raw file.
func (r *Registry) resolveSlot(dest record.Kind) *Slot {
	if s := &r.slots[dest]; s.open() {
		return s
	}
	return &r.slots[record.Text]
}

// Write appends rec.Payload, byte-faithful (no newline appended), to
// Resolve(rec.Dest) — through that destination's buffer if it was opened
// with InstallBuffered, otherwise straight to the file. Write failures are
// the caller's responsibility to report on the preserved standard error
// per spec — this method only returns the error, it does not log it,
// since logging here would recurse through the very pipe this collector
// reads.
func (r *Registry) Write(rec *record.Record) error {
	s := r.resolveSlot(rec.Dest)
	if s.File == nil {
		return nil
	}
	if s.buf != nil {
		_, err := s.buf.Write(rec.Payload)
		return err
	}
	_, err := s.File.Write(rec.Payload)
	return err
}

// Offset returns the current write offset of dest's file, including any
// bytes still sitting in its buffer but not yet flushed, used by the
// rotation engine to evaluate the size trigger. Returns 0 if dest has no
// open file.
func (r *Registry) Offset(dest record.Kind) (int64, error) {
	s := &r.slots[dest]
	if !s.open() {
		return 0, nil
	}
	off, err := s.File.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if s.buf != nil {
		off += int64(s.buf.Buffered())
	}
	return off, nil
}

// Flush flushes dest's buffer, if it has one opened via InstallBuffered.
// It is a no-op for unbuffered or closed slots.
func (r *Registry) Flush(dest record.Kind) error {
	s := &r.slots[dest]
	if s.buf == nil {
		return nil
	}
	return s.buf.Flush()
}

// FlushAll flushes every slot's buffer. Called opportunistically by the
// event loop on an idle timeout (spec.md §4.6 step 8) and before shutdown.
func (r *Registry) FlushAll() error {
	var first error
	for i := range r.slots {
		if r.slots[i].buf == nil {
			continue
		}
		if err := r.slots[i].buf.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every currently open slot, flushing any buffered bytes
// first. Nothing in the collector calls it: the normal shutdown path
// (spec.md §4.6 step 9) deliberately leaves files to the OS rather than
// closing them explicitly.
func (r *Registry) Close() error {
	var first error
	for i := range r.slots {
		if r.slots[i].File == nil {
			continue
		}
		if err := r.slots[i].closeLocked(); err != nil && first == nil {
			first = err
		}
		r.slots[i].Name = ""
	}
	return first
}
