// Package connectivity tracks whether the remote authority is reachable.
// A periodic probe flips a single online flag; subscribers hear about the
// transitions, not the steady state.
package connectivity

import (
	"context"
	"log"
	"sync"
	"time"
)

// ProbeFunc checks reachability. Any non-nil error means offline.
type ProbeFunc func(ctx context.Context) error

type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	online bool
	subs   []chan bool
}

func NewMonitor(probe ProbeFunc, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Subscribe returns a channel that receives the new state on every
// transition. The channel holds one pending value; when a subscriber lags,
// older transitions are dropped in favor of the latest state.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline forces the state, firing subscribers on a transition. Used at
// boot to seed the result of the first probe synchronously and by tests.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if online {
		log.Printf("[connectivity] authority reachable")
	} else {
		log.Printf("[connectivity] authority unreachable")
	}
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Drop the stale pending value, keep the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}

// Run probes until the context is canceled. The first probe fires
// immediately so the engine does not wait a full interval at boot.
func (m *Monitor) Run(ctx context.Context) {
	m.probeOnce(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	m.SetOnline(m.probe(probeCtx) == nil)
}
