// Package collector implements the C6 event loop: the single-threaded
// cooperative loop that waits on pipe readability, a wakeup latch, and a
// rotation timeout, and drives bytes through the frame codec, reassembler,
// destination registry, and rotation engine in the order spec.md §4.6
// prescribes.
//
// Grounded on the teacher's driver/log/tailer/logstream/filestream.go
// stream() goroutine for the dedicated-reader-thread-plus-channel
// structure (our EOF is terminal rather than rotation-of-the-source, so
// the "new inode" / truncation-detection branches have no counterpart
// here); on syslogger.c's SysLoggerMain main loop for the exact
// per-iteration ordering (config-reload check, rotation trigger
// evaluation, retention sweep, rotation tick, timeout computation, wait,
// read-decode-reassemble-write, EOF handling).
package collector

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sysflow-telemetry/sf-apis/go/logger"

	"github.com/sysloggerd/collector/internal/destination"
	"github.com/sysloggerd/collector/internal/reassembly"
	"github.com/sysloggerd/collector/internal/record"
	"github.com/sysloggerd/collector/internal/retention"
	"github.com/sysloggerd/collector/internal/rotation"
	"github.com/sysloggerd/collector/internal/waker"
	"github.com/sysloggerd/collector/internal/wire"
)

const readBufferSize = 64 * 1024

// RotationSignal reports and consumes pending out-of-band rotation/reload
// requests (SIGHUP/SIGUSR1 in production). Satisfied by *waker.signalWaker
// in production and by a fixed stub in tests.
type RotationSignal interface {
	ReloadRequested() bool
	RotateRequested() bool
}

// ConfigSource supplies a fresh rotation.Config on reload (nil keeps the
// current one). It reports nothing about what changed: handleReload itself
// compares the directory and filename pattern and forces a rotation only
// when one of them differs. A changed destination set or rotation interval
// does not force a rotation; the engine applies it at its next rotation tick.
type ConfigSource interface {
	Reload() *rotation.Config
}

// Collector owns every piece of mutable state a single collector instance
// needs: the destination registry, the rotation engine, the reassembler,
// and the EOF flag. It is not safe for concurrent use outside of Run's own
// reader goroutine, which only ever sends on a channel.
type Collector struct {
	cfg    *rotation.Config
	reg    *destination.Registry
	rot    *rotation.Engine
	reasm  *reassembly.Reassembler
	waker  waker.Waker
	sig    RotationSignal
	cfgSrc ConfigSource

	eofSeen bool
}

// New constructs a Collector with freshly opened destination files per
// cfg. Callers must call Run afterward to actually process input.
func New(cfg *rotation.Config, wk waker.Waker, sig RotationSignal, cfgSrc ConfigSource) (*Collector, error) {
	reg := destination.New()
	rot := rotation.New(cfg, reg)
	if err := rot.Open(time.Now()); err != nil {
		return nil, err
	}
	return &Collector{
		cfg:    cfg,
		reg:    reg,
		rot:    rot,
		reasm:  reassembly.New(),
		waker:  wk,
		sig:    sig,
		cfgSrc: cfgSrc,
	}, nil
}

// Registry exposes the destination registry, primarily so fan-out and
// tests can inspect current file state.
func (c *Collector) Registry() *destination.Registry { return c.reg }

type readResult struct {
	n    int
	err  error
	data []byte
}

// Run reads framed bytes from pipe until EOF, reassembling and writing
// records, and drives the rotation/retention machinery on each wakeup or
// timeout. It returns nil on a clean pipe-EOF shutdown and ctx.Err() if ctx
// is cancelled first. Read errors other than EOF are logged and the loop
// keeps going; they are never returned.
func (c *Collector) Run(ctx context.Context, pipe io.Reader) error {
	reads := make(chan readResult)
	go c.readLoop(ctx, pipe, reads)

	buf := make([]byte, 0, readBufferSize)

	for {
		if c.sig != nil && c.sig.ReloadRequested() {
			c.handleReload()
		}

		timeBased, sizeFlags, explicit := c.evaluateTriggers()
		if timeBased || len(sizeFlags) > 0 || explicit {
			c.runRetention()
			trig := rotation.Trigger{TimeBased: timeBased, SizeFlags: sizeFlags, Explicit: explicit}
			if err := c.rot.Tick(time.Now(), trig); err != nil {
				logger.Error.Println("collector: rotation tick:", err)
			}
		}

		timeout := c.rotationTimeout()

		select {
		case <-ctx.Done():
			return ctx.Err()

		case r, ok := <-reads:
			if !ok {
				return nil
			}
			if r.err != nil && r.err != io.EOF {
				logger.Error.Println("collector: pipe read:", r.err)
				continue
			}
			if r.n == 0 {
				c.eofSeen = true
				c.flushResidual(buf)
				return nil
			}
			buf = append(buf, r.data[:r.n]...)
			c.processBuffer(&buf)

		case <-c.waker.Wake():
			// loop around: reload/rotation flags re-evaluated at top.

		case <-time.After(timeout):
			// opportunistic: push out whatever AUDIT has accumulated under
			// polar_enable_syslog_file_buffer; unbuffered destinations are
			// unaffected since FlushAll is a no-op for them.
			if err := c.reg.FlushAll(); err != nil {
				logger.Error.Println("collector: flush:", err)
			}
		}

		if c.eofSeen {
			return nil
		}
	}
}

func (c *Collector) readLoop(ctx context.Context, pipe io.Reader, out chan<- readResult) {
	defer close(out)
	b := make([]byte, readBufferSize)
	for {
		n, err := pipe.Read(b)
		result := readResult{n: n, err: err, data: append([]byte(nil), b[:n]...)}
		select {
		case out <- result:
		case <-ctx.Done():
			return
		}
		if err == io.EOF {
			return
		}
	}
}

func (c *Collector) processBuffer(buf *[]byte) {
	data := *buf
	unconsumed := wire.Decode(data, len(data), func(e wire.Event) {
		if rec := c.reasm.Handle(e); rec != nil {
			c.writeRecord(rec)
		}
	})
	rest := data[len(data)-unconsumed:]
	*buf = append((*buf)[:0], rest...)
}

func (c *Collector) writeRecord(rec *record.Record) {
	if err := c.reg.Write(rec); err != nil {
		logger.Error.Println("collector: write failed:", err)
	}
}

func (c *Collector) flushResidual(residual []byte) {
	c.reasm.FlushActive(func(rec *record.Record) {
		c.writeRecord(rec)
	})
	if len(residual) > 0 {
		c.writeRecord(record.New(0, record.Text, append([]byte(nil), residual...)))
	}
	if err := c.reg.FlushAll(); err != nil {
		logger.Error.Println("collector: flush on shutdown:", err)
	}
}

func (c *Collector) handleReload() {
	if c.cfgSrc == nil {
		return
	}
	newCfg := c.cfgSrc.Reload()
	if newCfg == nil {
		return
	}
	rotationForced := newCfg.Directory != c.cfg.Directory ||
		newCfg.FilenamePattern != c.cfg.FilenamePattern
	if newCfg.Directory != c.cfg.Directory {
		if err := os.MkdirAll(newCfg.Directory, 0o700); err != nil {
			logger.Error.Println("collector: creating log directory:", err)
		}
	}
	c.cfg = newCfg
	c.rot.SetConfig(newCfg)
	if rotationForced {
		if err := c.rot.Tick(time.Now(), rotation.Trigger{Explicit: true}); err != nil {
			logger.Error.Println("collector: reload-triggered rotation:", err)
		}
	}
}

// evaluateTriggers computes the time/size/explicit rotation inputs for
// this tick. Size triggers are derived from the registry's current file
// offsets against Log_RotationSize.
func (c *Collector) evaluateTriggers() (timeBased bool, sizeFlags map[record.Kind]bool, explicit bool) {
	now := time.Now()
	next := c.rot.NextRotationTime()
	timeBased = c.cfg.RotationAgeMinutes > 0 && !next.IsZero() && !now.Before(next) && !c.rot.Disabled()

	if c.cfg.RotationSizeKB > 0 {
		threshold := c.cfg.RotationSizeKB * 1024
		for _, kind := range record.Kinds() {
			if !c.cfg.Enabled(kind) {
				continue
			}
			off, err := c.reg.Offset(kind)
			if err != nil {
				continue
			}
			if off >= threshold {
				if sizeFlags == nil {
					sizeFlags = make(map[record.Kind]bool)
				}
				sizeFlags[kind] = true
			}
		}
	}

	if c.sig != nil && c.sig.RotateRequested() {
		explicit = true
	}

	if explicit && !timeBased && len(sizeFlags) == 0 {
		sizeFlags = make(map[record.Kind]bool, len(record.Kinds()))
		for _, kind := range record.Kinds() {
			sizeFlags[kind] = true
		}
	}

	return timeBased, sizeFlags, explicit
}

func (c *Collector) runRetention() {
	caps := retention.Caps{
		Main:  c.cfg.RetentionMain,
		Audit: c.cfg.RetentionAudit,
		Slow:  c.cfg.RetentionSlow,
	}
	if _, err := retention.Sweep(c.cfg.Directory, c.cfg.FilenamePattern, caps); err != nil {
		logger.Error.Println("collector: retention sweep:", err)
	}
}

func (c *Collector) rotationTimeout() time.Duration {
	next := c.rot.NextRotationTime()
	if next.IsZero() || c.rot.Disabled() {
		return 10 * time.Second
	}
	d := time.Until(next)
	if d <= 0 {
		return 0
	}
	const maxTimeout = 10 * time.Minute
	if d > maxTimeout {
		return maxTimeout
	}
	return d
}
