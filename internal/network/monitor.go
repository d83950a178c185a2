// Package network turns periodic probes of the remote backend into
// connectivity events.
package network

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/roombook/internal/bus"
	"github.com/matheus3301/roombook/internal/status"
	"go.uber.org/zap"
)

// Prober checks whether the remote backend is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// Observer is notified of every connectivity change.
type Observer interface {
	ObserveConnectivity(online bool)
}

// Monitor probes the remote on an interval and publishes network.online and
// network.offline on transitions.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	bus      *bus.Bus
	state    *status.Machine
	observer Observer
	logger   *zap.Logger

	mu     sync.Mutex
	known  bool
	online bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor. state and observer may be nil.
func NewMonitor(prober Prober, interval time.Duration, b *bus.Bus, state *status.Machine, observer Observer, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  min(interval, 5*time.Second),
		bus:      b,
		state:    state,
		observer: observer,
		logger:   logger,
	}
}

// Start probes immediately and then on every interval until Stop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Check(ctx)
		for {
			select {
			case <-ticker.C:
				m.Check(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops probing and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Online reports the result of the last probe.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check runs one probe and publishes a transition if connectivity changed.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Ping(pctx)
	cancel()
	if ctx.Err() != nil {
		return m.Online()
	}
	online := err == nil

	m.mu.Lock()
	changed := !m.known || m.online != online
	m.known = true
	m.online = online
	m.mu.Unlock()

	if !changed {
		return online
	}
	if m.observer != nil {
		m.observer.ObserveConnectivity(online)
	}
	if online {
		m.logger.Info("remote reachable")
		m.transition(status.Online)
		m.bus.Emit(bus.KindNetworkOnline, nil)
	} else {
		m.logger.Warn("remote unreachable", zap.Error(err))
		m.transition(status.Offline)
		m.bus.Emit(bus.KindNetworkOffline, err)
	}
	return online
}

func (m *Monitor) transition(to status.State) {
	if m.state == nil {
		return
	}
	if m.state.Current() == status.Error {
		return
	}
	if err := m.state.Transition(to); err != nil {
		m.logger.Debug("state transition skipped", zap.Error(err))
	}
}
