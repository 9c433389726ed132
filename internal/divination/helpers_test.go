package divination

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/lingqian/internal/catalog"
)

// seqRNG replays fixed values. Exhausted sequences return zero.
type seqRNG struct {
	mu     sync.Mutex
	ints   []int
	floats []float64
}

func (r *seqRNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func (r *seqRNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

// recorder is a Listener keeping every event in arrival order.
type recorder struct {
	mu        sync.Mutex
	events    []string
	phases    []Phase
	completes []Snapshot
	errs      []error
}

func (r *recorder) OnPhaseChange(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "phase:"+s.Phase.String())
	r.phases = append(r.phases, s.Phase)
}

func (r *recorder) OnDrawComplete(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "complete")
	r.completes = append(r.completes, s)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "error")
	r.errs = append(r.errs, err)
}

func (r *recorder) count(p Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.phases {
		if x == p {
			n++
		}
	}
	return n
}

// switchResolver fails every lookup once broken is set.
type switchResolver struct {
	mu     sync.Mutex
	c      *catalog.Catalog
	broken bool
}

func (s *switchResolver) Lookup(key string) (*catalog.Deity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return nil, fmt.Errorf("%w: %s", catalog.ErrDeityNotFound, key)
	}
	return s.c.Lookup(key)
}

func (s *switchResolver) breakIt() {
	s.mu.Lock()
	s.broken = true
	s.mu.Unlock()
}

// testTiming uses a fixed shake delay so the RNG is only consumed by the
// draw and the throw.
func testTiming() Timing {
	return Timing{
		ShakeMin: 2 * time.Second,
		ShakeMax: 2 * time.Second,
		Rise:     1500 * time.Millisecond,
		Throw:    1 * time.Second,
		Reveal:   1200 * time.Millisecond,
	}
}

func testDeity(key string, n int) catalog.Deity {
	d := catalog.Deity{Key: key, Name: key + "-name"}
	for i := 1; i <= n; i++ {
		d.Entries = append(d.Entries, catalog.FortuneEntry{
			Title: fmt.Sprintf("第%d籤", i),
			Level: "中平",
			Poem:  fmt.Sprintf("poem %d", i),
		})
	}
	return d
}

func testCatalog(t *testing.T, deities ...catalog.Deity) *catalog.Catalog {
	t.Helper()
	if len(deities) == 0 {
		deities = []catalog.Deity{testDeity("mazu", 10), testDeity("guanyin", 3)}
	}
	c, err := catalog.New(deities)
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	return c
}

type fixture struct {
	m     *Machine
	sched *ManualScheduler
	rec   *recorder
}

func newFixture(t *testing.T, resolver DeityResolver, rng RNG, th Thresholds) *fixture {
	t.Helper()
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	sched := NewManualScheduler()
	m := NewMachine(resolver, rng, sched, Config{Timing: testTiming(), Thresholds: th}, nil)
	rec := &recorder{}
	m.SetListener(rec)
	return &fixture{m: m, sched: sched, rec: rec}
}

func (f *fixture) mustSelect(t *testing.T, key string) {
	t.Helper()
	if _, err := f.m.SelectDeity(key); err != nil {
		t.Fatalf("SelectDeity(%s) failed: %v", key, err)
	}
}

// toAwaiting drives a started ritual through shake and rise.
func (f *fixture) toAwaiting(t *testing.T) {
	t.Helper()
	if _, err := f.m.StartDraw(); err != nil {
		t.Fatalf("StartDraw failed: %v", err)
	}
	f.sched.Advance(2 * time.Second)
	f.sched.Advance(1500 * time.Millisecond)
	if p := f.m.Snapshot().Phase; p != PhaseAwaitingConfirmation {
		t.Fatalf("expected awaiting_confirmation, got %s", p)
	}
}

// throwAndReveal confirms and runs the throw and reveal timers.
func (f *fixture) throwAndReveal(t *testing.T) Snapshot {
	t.Helper()
	if _, err := f.m.ConfirmThrow(); err != nil {
		t.Fatalf("ConfirmThrow failed: %v", err)
	}
	f.sched.Advance(1 * time.Second)
	f.sched.Advance(1200 * time.Millisecond)
	return f.m.Snapshot()
}
