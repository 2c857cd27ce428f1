package telemetry

import (
	"testing"
	"time"
)

func stageAt(ts time.Time, name, user, org string, ms int64, ok bool) Event {
	return Event{
		Kind:      KindStage,
		Timestamp: ts,
		UserID:    user,
		OrgID:     org,
		Success:   ok,
		Stage:     &StageEvent{Name: name, LatencyMs: ms},
	}
}

func TestSubmitNeverBlocksWhenFull(t *testing.T) {
	t.Parallel()

	// No workers are started, so nothing drains the queue.
	m := newMonitor(Config{QueueCapacity: 1})

	start := time.Now()
	for i := 0; i < 2000; i++ {
		m.Submit(stageAt(time.Now(), StageTranscription, "u", "o", 5, true))
	}
	elapsed := time.Since(start)

	if elapsed > 200*time.Millisecond {
		t.Fatalf("2000 submits against a full queue took %v, expected no blocking", elapsed)
	}
	if got := m.Accepted(); got != 1 {
		t.Errorf("accepted = %d, want 1", got)
	}
	if got := m.Dropped(); got != 1999 {
		t.Errorf("dropped = %d, want 1999", got)
	}
}

func TestSubmitDropAccounting(t *testing.T) {
	t.Parallel()

	m := newMonitor(Config{QueueCapacity: 10000})
	for i := 0; i < 10001; i++ {
		m.Submit(stageAt(time.Now(), StageGeneration, "u", "o", 1, true))
	}

	if got := m.Accepted(); got != 10000 {
		t.Errorf("accepted = %d, want 10000", got)
	}
	if got := m.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want exactly 1", got)
	}
	if got := m.QueueDepth(); got != 10000 {
		t.Errorf("queue depth = %d, want 10000", got)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	m := NewMonitor(Config{QueueCapacity: 64})
	for i := 0; i < 50; i++ {
		m.Submit(stageAt(time.Now(), StageSynthesis, "u", "o", int64(i), true))
	}
	m.Close()

	snap := m.Snapshot()
	if snap.Queue.Consumed != 50 {
		t.Errorf("consumed = %d, want 50", snap.Queue.Consumed)
	}
	if snap.Queue.Depth != 0 {
		t.Errorf("queue depth after close = %d, want 0", snap.Queue.Depth)
	}
	st, ok := snap.Stages[StageSynthesis]
	if !ok {
		t.Fatalf("stage %q missing from snapshot: %+v", StageSynthesis, snap.Stages)
	}
	if st.Count != 50 {
		t.Errorf("stage count = %d, want 50", st.Count)
	}
}

func TestConsumeRecordsLastErrorAndContinues(t *testing.T) {
	t.Parallel()

	m := newMonitor(Config{})
	m.consume(Event{Kind: "bogus", Timestamp: time.Now()})
	m.consume(Event{Kind: KindStage, Timestamp: time.Now()}) // missing payload
	m.consume(stageAt(time.Now(), StageTranscription, "u", "o", 10, true))

	snap := m.Snapshot()
	if snap.Monitor.LastError == "" {
		t.Error("expected last error to be recorded for malformed events")
	}
	if got := snap.Stages[StageTranscription].Count; got != 1 {
		t.Errorf("stage count after malformed events = %d, want 1", got)
	}
	if snap.Queue.Consumed != 3 {
		t.Errorf("consumed = %d, want 3", snap.Queue.Consumed)
	}
}

func TestFoldBoundsIdentityHistory(t *testing.T) {
	t.Parallel()

	m := newMonitor(Config{IdentityCapacity: 2})
	now := time.Now()
	for i := 0; i < 3; i++ {
		m.consume(stageAt(now.Add(time.Duration(i)*time.Second), StageGeneration, "marie", "ferme-12", int64(i), true))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.identities["ferme-12/marie"]
	if !ok {
		t.Fatal("identity history missing")
	}
	if got := h.events.len(); got != 2 {
		t.Errorf("identity ring length = %d, want 2", got)
	}
	evs := h.events.events()
	if evs[0].Stage.LatencyMs != 1 || evs[1].Stage.LatencyMs != 2 {
		t.Errorf("ring kept wrong events: %+v", evs)
	}
	if !h.lastSeen.Equal(now.Add(2 * time.Second)) {
		t.Errorf("lastSeen = %v, want %v", h.lastSeen, now.Add(2*time.Second))
	}
}

func TestRingWrapsOldestFirst(t *testing.T) {
	t.Parallel()

	r := newRing(3)
	for i := int64(1); i <= 5; i++ {
		r.add(Event{Stage: &StageEvent{LatencyMs: i}})
	}
	evs := r.events()
	if len(evs) != 3 {
		t.Fatalf("ring length = %d, want 3", len(evs))
	}
	for i, want := range []int64{3, 4, 5} {
		if evs[i].Stage.LatencyMs != want {
			t.Errorf("events()[%d].LatencyMs = %d, want %d", i, evs[i].Stage.LatencyMs, want)
		}
	}
}
