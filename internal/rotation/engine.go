// Package rotation implements the C4 rotation engine: the per-destination
// state machine deciding when and how to roll over output files.
//
// Grounded on syslogger.c's logfile_rotate_dest / logfile_rotate /
// set_next_rotation_time / update_metainfo_datafile (the literal algorithm
// spec.md §4.4 describes, including the ENFILE/EMFILE-vs-other-errno split
// and the truncate-mode page-cache-drop advisory); the open-rotate-install
// sequencing idiom follows zaproll's Rotation.open and moby-moby's
// loggerutils/logfile.go rotate().
package rotation

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/sysflow-telemetry/sf-apis/go/logger"
	"golang.org/x/sys/unix"

	"github.com/sysloggerd/collector/internal/destination"
	"github.com/sysloggerd/collector/internal/record"
)

// Trigger describes why a rotation tick is being evaluated.
type Trigger struct {
	TimeBased bool
	SizeFlags map[record.Kind]bool
	Explicit  bool
}

// Engine owns the sticky state of the rotation state machine: whether
// rotation has been disabled by a persistent failure, the per-destination
// last-used filename, and the next scheduled rotation time.
type Engine struct {
	cfg  *Config
	reg  *destination.Registry
	name map[record.Kind]string

	disabled         bool
	nextRotationTime time.Time
}

// New creates a rotation Engine bound to reg, which it installs and closes
// files through.
func New(cfg *Config, reg *destination.Registry) *Engine {
	return &Engine{cfg: cfg, reg: reg, name: make(map[record.Kind]string)}
}

// SetConfig replaces the engine's configuration, as happens on SIGHUP, and
// clears the sticky disabled flag (spec.md §4.6 step 2: "clear
// rotation_disabled" on reload).
func (e *Engine) SetConfig(cfg *Config) {
	e.cfg = cfg
	e.disabled = false
}

// Disabled reports whether rotation is currently sticky-disabled following
// a persistent open failure.
func (e *Engine) Disabled() bool { return e.disabled }

// NextRotationTime returns the currently scheduled next time-based
// rotation instant, the zero Time if time-based rotation is off.
func (e *Engine) NextRotationTime() time.Time { return e.nextRotationTime }

// Open opens the initial set of destination files at startup: TEXT always,
// the others per configuration, all in append mode with the current time
// as the filename timestamp. It also primes next_rotation_time and writes
// the initial meta-info file.
func (e *Engine) Open(now time.Time) error {
	for _, kind := range record.Kinds() {
		if !e.cfg.Enabled(kind) {
			continue
		}
		name := getname(e.cfg.Directory, e.cfg.FilenamePattern, now, kind, e.cfg.CollectorIndex)
		f, err := openWithUmask(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, e.cfg.FileMode)
		if err != nil {
			return err
		}
		if err := e.install(kind, f, name); err != nil {
			return err
		}
		e.name[kind] = name
	}
	e.computeNextRotationTime(now)
	return writeMetaInfo(e.cfg.Directory, e.cfg, e.name)
}

// Tick runs one pass of the rotation state machine over all destinations,
// in the fixed order TEXT, CSV, JSON, AUDIT, SLOW, per spec.md §4.4. If any
// destination's open fails (rotateDest returning cont=false, on ENFILE/EMFILE
// or a persistent-disable), Tick stops immediately without writing the
// meta-info file or advancing next_rotation_time, matching logfile_rotate's
// early return on any logfile_rotate_dest failure: a transient failure must
// leave the next tick free to retry right away, not stall for a full
// rotation interval.
func (e *Engine) Tick(now time.Time, trig Trigger) error {
	fntime := now
	if trig.TimeBased {
		fntime = e.nextRotationTime
	}

	for _, kind := range record.Kinds() {
		cont, err := e.rotateDest(kind, trig, fntime)
		if err != nil {
			logger.Error.Println("rotation:", err)
		}
		if !cont {
			return nil
		}
	}

	if err := writeMetaInfo(e.cfg.Directory, e.cfg, e.name); err != nil {
		logger.Error.Println("rotation: meta-info write failed:", err)
	}
	e.computeNextRotationTime(now)
	return nil
}

// rotateDest applies the per-destination state machine to kind and
// reports whether processing should continue to the next destination.
func (e *Engine) rotateDest(kind record.Kind, trig Trigger, fntime time.Time) (bool, error) {
	if !e.cfg.Enabled(kind) && kind != record.Text {
		e.reg.Install(kind, nil, "")
		delete(e.name, kind)
		return true, nil
	}

	if !trig.TimeBased && !trig.SizeFlags[kind] && !trig.Explicit {
		return true, nil
	}

	name := getname(e.cfg.Directory, e.cfg.FilenamePattern, fntime, kind, e.cfg.CollectorIndex)

	truncate := e.cfg.TruncateOnRotation && trig.TimeBased &&
		e.name[kind] != "" && name != e.name[kind]

	var f *os.File
	var err error
	if truncate {
		dropPageCache(e.name[kind])
		f, err = openWithUmask(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, e.cfg.FileMode)
	} else {
		f, err = openWithUmask(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, e.cfg.FileMode)
	}

	if err != nil {
		if errors.Is(err, syscall.ENFILE) || errors.Is(err, syscall.EMFILE) {
			return false, err
		}
		e.disabled = true
		return false, err
	}

	if err := e.install(kind, f, name); err != nil {
		return true, err
	}
	e.name[kind] = name
	return true, nil
}

// install installs f into the registry under kind, routing AUDIT through
// InstallBuffered when polar_enable_syslog_file_buffer is set.
func (e *Engine) install(kind record.Kind, f *os.File, name string) error {
	if kind == record.Audit && e.cfg.AuditFullBuffer {
		return e.reg.InstallBuffered(kind, f, name)
	}
	return e.reg.Install(kind, f, name)
}

// computeNextRotationTime rounds now up to the next multiple of the
// rotation interval in the local timezone, matching set_next_rotation_time.
func (e *Engine) computeNextRotationTime(now time.Time) {
	if e.cfg.RotationAgeMinutes <= 0 {
		e.nextRotationTime = time.Time{}
		return
	}
	interval := time.Duration(e.cfg.RotationAgeMinutes) * time.Minute
	_, offset := now.Zone()
	shifted := now.Add(time.Duration(offset) * time.Second)
	shifted = shifted.Truncate(interval)
	shifted = shifted.Add(interval)
	e.nextRotationTime = shifted.Add(-time.Duration(offset) * time.Second)
}

// openWithUmask opens path with the given flags, forcing IWUSR on in the
// effective mode, exactly as logfile_open's umask dance does.
func openWithUmask(path string, flags int, mode uint32) (*os.File, error) {
	old := unix.Umask(int(^(mode | 0o200) & 0o777))
	defer unix.Umask(old)
	return os.OpenFile(path, flags, os.FileMode(mode|0o200))
}

// dropPageCache advises the OS to drop cached pages for the file that was
// just truncated away from, mirroring polar_drop_log_page_cache.
func dropPageCache(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	_ = unix.PosixFadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
}
