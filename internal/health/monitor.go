// Package health probes the known services on a fixed period and maintains
// the process-wide connection-status snapshot the UI reads.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabdesk/collabdesk/internal/api"
)

const (
	DefaultInterval     = 5 * time.Second
	DefaultProbeTimeout = 2 * time.Second
)

// Indicator strings shown by status-aware views.
const (
	IndicatorAllConnected = "All Services Connected"
	IndicatorGatewayOnly  = "Gateway Connected"
	IndicatorOffline      = "Services Offline"
)

// Prober issues a single health probe for one service. *api.Resolver
// satisfies this.
type Prober interface {
	Probe(ctx context.Context, svc api.Service) (int, error)
}

// Status maps each known service to its reachability as of the last
// completed probe cycle.
type Status map[api.Service]bool

func (s Status) AllConnected() bool {
	if len(s) == 0 {
		return false
	}
	for _, svc := range api.KnownServices() {
		if !s[svc] {
			return false
		}
	}
	return true
}

// Indicator renders the status the way the editor header presents it.
func (s Status) Indicator() string {
	switch {
	case s.AllConnected():
		return IndicatorAllConnected
	case s[api.ServiceGateway]:
		return IndicatorGatewayOnly
	default:
		return IndicatorOffline
	}
}

func (s Status) clone() Status {
	out := make(Status, len(s))
	for svc, ok := range s {
		out[svc] = ok
	}
	return out
}

type Options struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	// OnUpdate, when set, receives the fresh snapshot after every completed
	// cycle.
	OnUpdate func(Status)
	Logger   zerolog.Logger
}

// Monitor runs independently of user action; probe failures only ever fold
// into the status map.
type Monitor struct {
	prober       Prober
	interval     time.Duration
	probeTimeout time.Duration
	onUpdate     func(Status)
	logger       zerolog.Logger

	mu     sync.RWMutex
	status Status
}

func NewMonitor(prober Prober, opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	status := Status{}
	for _, svc := range api.KnownServices() {
		status[svc] = false
	}
	return &Monitor{
		prober:       prober,
		interval:     interval,
		probeTimeout: probeTimeout,
		onUpdate:     opts.OnUpdate,
		logger:       opts.Logger,
		status:       status,
	}
}

// Snapshot returns a copy of the last completed cycle's status.
func (m *Monitor) Snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.clone()
}

// CheckOnce probes all services concurrently, each bounded by the probe
// timeout, and swaps the status map in wholesale once every probe settles.
// A service counts healthy when it answers with any status below 500.
func (m *Monitor) CheckOnce(ctx context.Context) Status {
	services := api.KnownServices()
	results := make([]bool, len(services))

	var wg sync.WaitGroup
	for i, svc := range services {
		wg.Add(1)
		go func(i int, svc api.Service) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
			defer cancel()
			code, err := m.prober.Probe(probeCtx, svc)
			if err != nil {
				m.logger.Debug().Err(err).Str("service", string(svc)).Msg("health probe failed")
				return
			}
			results[i] = code < 500
		}(i, svc)
	}
	wg.Wait()

	next := make(Status, len(services))
	for i, svc := range services {
		next[svc] = results[i]
	}

	m.mu.Lock()
	m.status = next
	m.mu.Unlock()

	if m.onUpdate != nil {
		m.onUpdate(next.clone())
	}
	return next.clone()
}

// Run checks immediately and then on every interval tick until the context
// is canceled.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckOnce(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}
