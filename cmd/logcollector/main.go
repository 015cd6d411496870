// Command logcollector is the process entrypoint for the log collector
// described by spec.md: it wires together configuration loading, the
// supervisor bridge, the signal-driven wakeup latch, and either a single
// collector or a multi-collector fan-out, then runs until pipe EOF.
//
// The actual supervisor (forking this process, owning the pipe write end
// across restarts, forwarding worker stdio into it) is out of scope per
// spec.md §1; this entrypoint plays the collector side only, reading
// framed bytes from a pipe whose write end is assumed already connected
// (in production, to the inherited file descriptor a real supervisor
// would set up; standalone here, to the bridge's own pipe, left open for
// the lifetime of the process).
//
// Grounded on syslogger.c's SysLogger_Start/SysLoggerMain for the startup
// sequence (create pipe, redirect own stdio, open initial files, ignore
// termination signals, run until EOF) this file reproduces at the process
// level.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sysflow-telemetry/sf-apis/go/logger"

	"github.com/sysloggerd/collector/internal/bridge"
	"github.com/sysloggerd/collector/internal/collector"
	"github.com/sysloggerd/collector/internal/config"
	"github.com/sysloggerd/collector/internal/fanout"
	"github.com/sysloggerd/collector/internal/waker"
)

// rotationWaker is the combined capability runSingle/runFanout need from
// the production signal-driven waker: the Waker interface itself plus the
// reload/rotate flag reporting internal/collector's event loop consults on
// every iteration. waker.NewSignal's concrete return type satisfies this
// structurally without needing to be named here.
type rotationWaker interface {
	waker.Waker
	collector.RotationSignal
}

func main() {
	configPath := flag.String("config", "", "path to the collector configuration file (optional; defaults apply)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "logcollector:", err)
		os.Exit(1)
	}
}

// run contains the full startup sequence, kept separate from main so that
// it returns an error instead of calling os.Exit directly.
func run(configPath string) error {
	loader, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	flat, err := loader.Snapshot()
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	if !flat.LoggingCollector {
		logger.Info.Println("logging_collector disabled; exiting")
		return nil
	}

	if err := os.MkdirAll(flat.LogDirectory, 0o750); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Termination signals are ignored: per spec.md §5/§9, this process
	// outlives every producer and exits only on pipe EOF, so it can still
	// catch their final dying-gasp messages.
	signal.Ignore(syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGPIPE, syscall.SIGALRM, syscall.SIGUSR2, syscall.SIGCHLD)

	// USR1 (explicit rotation) and HUP (config reload) are the collector's
	// only rotation-trigger inputs; probing for and removing the
	// `logrotate` sentinel file is the supervisor's job per spec.md §1/§6,
	// not this process's.
	wk := waker.NewSignal(ctx, 30*time.Second)
	loader.WatchFile(wk)

	if flat.MultiSyslogger && flat.SysloggerNum > 1 {
		return runFanout(ctx, flat.SysloggerNum, loader, wk)
	}
	return runSingle(ctx, loader, wk)
}

// runSingle wires one Collector reading from its own bridge's pipe. The
// collector's own stderr is redirected to the null device immediately
// after the bridge is up, per spec.md §4.7, so that diagnostics the
// collector itself emits through the normal logger path cannot recurse
// back through its own input pipe; br.WriteStderr, which writes to the
// stderr descriptor preserved before the redirect, remains the escape hatch
// for the fatal errors this function hits after that point.
func runSingle(ctx context.Context, loader *config.Loader, wk rotationWaker) error {
	br, err := bridge.New()
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := br.RedirectStandardStreams(); err != nil {
		return fmt.Errorf("redirecting standard streams: %w", err)
	}
	if err := br.RedirectOwnStderrToNull(); err != nil {
		br.WriteStderr(fmt.Sprintf("logcollector: redirect-to-null failed: %v\n", err))
	}

	cfg, err := loader.Current()
	if err != nil {
		br.WriteStderr(fmt.Sprintf("logcollector: building rotation config: %v\n", err))
		return err
	}

	c, err := collector.New(cfg, wk, wk, loader)
	if err != nil {
		br.WriteStderr(fmt.Sprintf("logcollector: starting collector: %v\n", err))
		return err
	}

	return c.Run(ctx, br.ReadEnd)
}

// runFanout wires the C8 multi-collector fan-out: index 0 privileged
// (full protocol, runs retention), indices 1..n-1 each serving AUDIT
// alone over their own dedicated pipe.
func runFanout(ctx context.Context, n int, loader *config.Loader, wk rotationWaker) error {
	baseCfg, err := loader.Current()
	if err != nil {
		return fmt.Errorf("building rotation config: %w", err)
	}

	members, err := fanout.Spawn(ctx, n, baseCfg, wk, wk)
	if err != nil {
		return fmt.Errorf("spawning fan-out: %w", err)
	}

	for _, m := range members {
		if err := m.Bridge.RedirectOwnStderrToNull(); err != nil {
			m.Bridge.WriteStderr(fmt.Sprintf("logcollector: collector %d redirect-to-null failed: %v\n", m.Index, err))
		}
	}

	fanout.Wait(members)
	return nil
}
