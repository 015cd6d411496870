// Package fanout implements the C8 multi-collector fan-out: spawning N
// collector instances where index 0 is privileged (the full multiplexed
// protocol, all destinations, retention sweeping) and indices 1..N-1 each
// serve exactly one destination (AUDIT) over their own dedicated pipe.
//
// Grounded on syslogger.c's syslogChannels[index][end]/MyLoggerIndex
// design (polar_enable_multi_syslogger, polar_syslogger_num) for the
// indexing and privilege split spec.md §4.8 describes; the small
// named-registry-of-running-components idiom follows the teacher's
// pc.AddDriver(name, constructor) driver registration pattern.
package fanout

import (
	"context"
	"fmt"

	"github.com/sysflow-telemetry/sf-apis/go/logger"

	"github.com/sysloggerd/collector/internal/bridge"
	"github.com/sysloggerd/collector/internal/collector"
	"github.com/sysloggerd/collector/internal/record"
	"github.com/sysloggerd/collector/internal/rotation"
	"github.com/sysloggerd/collector/internal/waker"
)

// Member is one running collector in the fan-out: its index, the bridge
// owning its pipe, and the collector instance itself.
type Member struct {
	Index      int
	Bridge     *bridge.Bridge
	Collector  *collector.Collector
	Privileged bool

	done chan struct{}
}

// Done reports when this member's Run call has returned, whether because
// it observed pipe EOF or because ctx was cancelled.
func (m *Member) Done() <-chan struct{} { return m.done }

// Wait blocks until every member has exited, matching the supervisor-side
// view of "the collector process group has shut down".
func Wait(members []*Member) {
	for _, m := range members {
		<-m.done
	}
}

// Spawn starts n collectors per baseCfg. n==1 degenerates to the ordinary
// single-collector case (spec.md's C8 is explicitly optional); baseCfg is
// cloned per index, with indices 1..n-1 restricted to AUDIT only and given
// their own CollectorIndex for filename suffixing.
func Spawn(ctx context.Context, n int, baseCfg *rotation.Config, wk waker.Waker, sig collector.RotationSignal) ([]*Member, error) {
	if n < 1 {
		return nil, fmt.Errorf("fanout: n must be >= 1, got %d", n)
	}

	members := make([]*Member, 0, n)
	for i := 0; i < n; i++ {
		b, err := bridge.New()
		if err != nil {
			closeAll(members)
			return nil, fmt.Errorf("fanout: creating bridge for collector %d: %w", i, err)
		}

		cfg := cloneConfig(baseCfg, i)
		if i > 0 {
			cfg.EnabledDestinations = map[record.Kind]bool{record.Audit: true}
			// Only the privileged collector sweeps the log directory.
			cfg.RetentionMain, cfg.RetentionAudit, cfg.RetentionSlow = -1, -1, -1
		}

		c, err := collector.New(cfg, wk, sig, nil)
		if err != nil {
			b.ReadEnd.Close()
			b.WriteEnd.Close()
			closeAll(members)
			return nil, fmt.Errorf("fanout: starting collector %d: %w", i, err)
		}

		members = append(members, &Member{Index: i, Bridge: b, Collector: c, Privileged: i == 0, done: make(chan struct{})})
	}

	for _, m := range members {
		m := m
		go func() {
			defer close(m.done)
			if err := m.Collector.Run(ctx, m.Bridge.ReadEnd); err != nil && ctx.Err() == nil {
				logger.Error.Printf("fanout: collector %d exited: %v", m.Index, err)
			}
		}()
	}

	return members, nil
}

func closeAll(members []*Member) {
	for _, m := range members {
		m.Bridge.ReadEnd.Close()
		m.Bridge.WriteEnd.Close()
	}
}

func cloneConfig(cfg *rotation.Config, index int) *rotation.Config {
	clone := *cfg
	clone.CollectorIndex = index
	dests := make(map[record.Kind]bool, len(cfg.EnabledDestinations))
	for k, v := range cfg.EnabledDestinations {
		dests[k] = v
	}
	clone.EnabledDestinations = dests
	return &clone
}
