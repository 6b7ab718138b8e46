package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabdesk/collabdesk/internal/api"
)

type fakeProber struct {
	codes map[api.Service]int
	errs  map[api.Service]error
	// block, when set, makes every probe wait for its context deadline.
	block bool

	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func (p *fakeProber) Probe(ctx context.Context, svc api.Service) (int, error) {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxSeen {
		p.maxSeen = p.inFlight
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()
	if p.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err := p.errs[svc]; err != nil {
		return 0, err
	}
	return p.codes[svc], nil
}

func TestCheckOnceAllTimeoutsGoOffline(t *testing.T) {
	prober := &fakeProber{block: true}
	monitor := NewMonitor(prober, Options{ProbeTimeout: 20 * time.Millisecond, Logger: zerolog.Nop()})

	start := time.Now()
	status := monitor.CheckOnce(context.Background())
	elapsed := time.Since(start)

	for _, svc := range api.KnownServices() {
		if status[svc] {
			t.Fatalf("expected %s to be unreachable after timeout", svc)
		}
	}
	if status.Indicator() != IndicatorOffline {
		t.Fatalf("expected %q, got %q", IndicatorOffline, status.Indicator())
	}
	// Probes run concurrently: four 20ms timeouts must settle in roughly one
	// timeout period, not four.
	if elapsed > 4*20*time.Millisecond {
		t.Fatalf("probes appear sequential: cycle took %v", elapsed)
	}
	prober.mu.Lock()
	maxSeen := prober.maxSeen
	prober.mu.Unlock()
	if maxSeen < 2 {
		t.Fatalf("expected concurrent probes, max in flight was %d", maxSeen)
	}
}

func TestCheckOnceFourXXCountsHealthyAndFailuresAreIsolated(t *testing.T) {
	prober := &fakeProber{
		codes: map[api.Service]int{
			api.ServiceGateway:  403,
			api.ServiceUser:     200,
			api.ServiceDocument: 502,
		},
		errs: map[api.Service]error{
			api.ServiceVersion: errors.New("connection refused"),
		},
	}
	monitor := NewMonitor(prober, Options{Logger: zerolog.Nop()})
	status := monitor.CheckOnce(context.Background())

	if !status[api.ServiceGateway] {
		t.Fatalf("4xx must count as reachable")
	}
	if !status[api.ServiceUser] {
		t.Fatalf("expected user service healthy")
	}
	if status[api.ServiceDocument] {
		t.Fatalf("5xx must count as unreachable")
	}
	if status[api.ServiceVersion] {
		t.Fatalf("probe error must mark only that service as down")
	}
	if status.Indicator() != IndicatorGatewayOnly {
		t.Fatalf("expected %q, got %q", IndicatorGatewayOnly, status.Indicator())
	}
}

func TestSnapshotIsReplacedWholesale(t *testing.T) {
	prober := &fakeProber{codes: map[api.Service]int{
		api.ServiceGateway:  200,
		api.ServiceUser:     200,
		api.ServiceDocument: 200,
		api.ServiceVersion:  200,
	}}
	var updates int32
	monitor := NewMonitor(prober, Options{
		Logger:   zerolog.Nop(),
		OnUpdate: func(Status) { atomic.AddInt32(&updates, 1) },
	})

	before := monitor.Snapshot()
	if before.AllConnected() {
		t.Fatalf("initial snapshot must be all-false")
	}

	after := monitor.CheckOnce(context.Background())
	if !after.AllConnected() {
		t.Fatalf("expected all services connected, got %+v", after)
	}
	if after.Indicator() != IndicatorAllConnected {
		t.Fatalf("expected %q, got %q", IndicatorAllConnected, after.Indicator())
	}
	// The copy handed out earlier must not have been mutated in place.
	if before.AllConnected() {
		t.Fatalf("earlier snapshot was mutated by the new cycle")
	}
	if atomic.LoadInt32(&updates) != 1 {
		t.Fatalf("expected exactly one update callback, got %d", updates)
	}

	// Mutating a returned snapshot must not leak into the monitor.
	after[api.ServiceGateway] = false
	if !monitor.Snapshot()[api.ServiceGateway] {
		t.Fatalf("returned snapshot aliases internal state")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	prober := &fakeProber{codes: map[api.Service]int{}}
	monitor := NewMonitor(prober, Options{Interval: 10 * time.Millisecond, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("monitor did not stop after cancel")
	}
}
