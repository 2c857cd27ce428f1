package telemetry

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/croplink/voice-gateway/internal/metrics"
)

type Config struct {
	QueueCapacity    int
	RecentCapacity   int
	ErrorCapacity    int
	IdentityCapacity int
	WindowSize       int
	AggregateEvery   time.Duration
	ObserveEvery     time.Duration
	CleanupEvery     time.Duration
	Retention        time.Duration
	Lookback         time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity < 1 {
		c.QueueCapacity = 10000
	}
	if c.RecentCapacity < 1 {
		c.RecentCapacity = 512
	}
	if c.ErrorCapacity < 1 {
		c.ErrorCapacity = 128
	}
	if c.IdentityCapacity < 1 {
		c.IdentityCapacity = 256
	}
	if c.WindowSize < 1 {
		c.WindowSize = 128
	}
	if c.AggregateEvery <= 0 {
		c.AggregateEvery = 5 * time.Second
	}
	if c.ObserveEvery <= 0 {
		c.ObserveEvery = 10 * time.Second
	}
	if c.CleanupEvery <= 0 {
		c.CleanupEvery = time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 30 * time.Minute
	}
	if c.Lookback <= 0 {
		c.Lookback = 15 * time.Minute
	}
	return c
}

// Monitor ingests pipeline events through a bounded queue and folds them
// into in-memory state: a shared recent-event ring, an error ring, lazily
// created per-identity rings, and running per-stage totals. A single
// consumer goroutine owns all folding; aggregation, self-observation, and
// cleanup run on their own tickers.
type Monitor struct {
	cfg Config

	queue     chan Event
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	accepted atomic.Uint64
	dropped  atomic.Uint64
	consumed atomic.Uint64

	mu          sync.RWMutex
	recent      *ring
	errs        *ring
	identities  map[string]*identityHistory
	stages      map[string]*stageStats
	agent       agentStats
	saves       uint64
	lastEventAt time.Time
	lastError   string
	cleanupRuns uint64

	aggMu sync.RWMutex
	agg   aggregates

	healthMu sync.RWMutex
	health   Health
}

type identityHistory struct {
	events   *ring
	lastSeen time.Time
}

type stageStats struct {
	count    uint64
	failures uint64
	window   []int64
}

type agentStats struct {
	runs              uint64
	tokens            uint64
	latencyTotalMs    int64
	firstTokenTotalMs int64
	firstTokenRuns    uint64
}

// NewMonitor builds a monitor and starts its background workers. Callers
// own the returned handle and must Close it on shutdown.
func NewMonitor(cfg Config) *Monitor {
	m := newMonitor(cfg)
	m.wg.Add(4)
	go m.run()
	go m.aggregateLoop()
	go m.observeLoop()
	go m.cleanupLoop()
	return m
}

func newMonitor(cfg Config) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:        cfg,
		queue:      make(chan Event, cfg.QueueCapacity),
		stop:       make(chan struct{}),
		recent:     newRing(cfg.RecentCapacity),
		errs:       newRing(cfg.ErrorCapacity),
		identities: make(map[string]*identityHistory),
		stages:     make(map[string]*stageStats),
		health:     Health{Score: 100, Status: StatusHealthy},
	}
}

// Submit enqueues an event without blocking. When the queue is full the
// event is dropped and the dropped counter increments by one; callers never
// wait and never see an error.
func (m *Monitor) Submit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case m.queue <- ev:
		m.accepted.Add(1)
	default:
		m.dropped.Add(1)
		metrics.TelemetryDropped.Inc()
	}
}

// Close stops intake, drains events still queued, and waits for the
// background workers to exit. Safe to call more than once.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()
	})
}

func (m *Monitor) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.consume(ev)
				default:
					return
				}
			}
		case ev := <-m.queue:
			m.consume(ev)
		}
	}
}

// consume folds one event. A malformed event is recorded as the monitor's
// last error and the loop moves on; ingestion never stops over bad input.
func (m *Monitor) consume(ev Event) {
	m.consumed.Add(1)
	if err := m.fold(ev); err != nil {
		m.mu.Lock()
		m.lastError = err.Error()
		m.mu.Unlock()
		slog.Warn("telemetry event rejected", "kind", ev.Kind, "error", err)
	}
}

func (m *Monitor) fold(ev Event) error {
	switch ev.Kind {
	case KindStage:
		if ev.Stage == nil {
			return fmt.Errorf("stage event without stage payload")
		}
	case KindAgent:
		if ev.Agent == nil {
			return fmt.Errorf("agent event without agent payload")
		}
	case KindQueue:
		if ev.Queue == nil {
			return fmt.Errorf("queue event without queue payload")
		}
	case KindSave:
		if ev.Save == nil {
			return fmt.Errorf("save event without save payload")
		}
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent.add(ev)
	if ev.Kind == KindQueue {
		// Self-observation samples are kept for inspection but do not
		// count as pipeline activity.
		return nil
	}
	m.lastEventAt = ev.Timestamp
	if !ev.Success {
		m.errs.add(ev)
	}
	if key := ev.IdentityKey(); key != "" {
		h, ok := m.identities[key]
		if !ok {
			h = &identityHistory{events: newRing(m.cfg.IdentityCapacity)}
			m.identities[key] = h
		}
		h.events.add(ev)
		if ev.Timestamp.After(h.lastSeen) {
			h.lastSeen = ev.Timestamp
		}
	}

	switch ev.Kind {
	case KindStage:
		st, ok := m.stages[ev.Stage.Name]
		if !ok {
			st = &stageStats{}
			m.stages[ev.Stage.Name] = st
		}
		st.count++
		if !ev.Success {
			st.failures++
		}
		st.window = append(st.window, ev.Stage.LatencyMs)
		if len(st.window) > m.cfg.WindowSize {
			st.window = st.window[1:]
		}
	case KindAgent:
		m.agent.runs++
		m.agent.tokens += uint64(ev.Agent.Tokens)
		m.agent.latencyTotalMs += ev.Agent.LatencyMs
		if ev.Agent.TimeToFirstTokenMs > 0 {
			m.agent.firstTokenTotalMs += ev.Agent.TimeToFirstTokenMs
			m.agent.firstTokenRuns++
		}
	case KindSave:
		m.saves++
	}
	return nil
}

// Accepted reports events enqueued since startup.
func (m *Monitor) Accepted() uint64 { return m.accepted.Load() }

// Dropped reports events rejected because the queue was full. The submit
// path is the only writer; everything else reads this value.
func (m *Monitor) Dropped() uint64 { return m.dropped.Load() }

// QueueDepth reports events currently waiting for the consumer.
func (m *Monitor) QueueDepth() int { return len(m.queue) }
