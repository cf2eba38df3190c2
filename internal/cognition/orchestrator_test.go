package cognition

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vireosec/hd4-controller/internal/archetype"
	"github.com/vireosec/hd4-controller/internal/classifier"
	"github.com/vireosec/hd4-controller/internal/config"
	"github.com/vireosec/hd4-controller/internal/dispatch"
	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/fixedpoint"
	"github.com/vireosec/hd4-controller/internal/rules"
	"github.com/vireosec/hd4-controller/internal/trigger"
	"github.com/vireosec/hd4-controller/internal/work"
)

// #region fakes

type fakeClassifier struct {
	verdict classifier.Verdict
	err     error
}

func (f *fakeClassifier) Classify(ctx context.Context, req classifier.Request) (classifier.Verdict, error) {
	if f.err != nil {
		return classifier.Verdict{}, f.err
	}
	return f.verdict, nil
}

type collectDispatcher struct {
	mu   sync.Mutex
	envs []dispatch.Envelope
}

func (d *collectDispatcher) Dispatch(ctx context.Context, env dispatch.Envelope) error {
	d.mu.Lock()
	d.envs = append(d.envs, env)
	d.mu.Unlock()
	return nil
}

func (d *collectDispatcher) all() []dispatch.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatch.Envelope(nil), d.envs...)
}

type fakeCorrelator struct {
	mu    sync.Mutex
	pairs [][2]string
}

func (c *fakeCorrelator) Reinforce(ctx context.Context, a, b string, at time.Time) error {
	c.mu.Lock()
	c.pairs = append(c.pairs, [2]string{a, b})
	c.mu.Unlock()
	return nil
}

// stepClock returns base on the first call and advances by step per call.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// #endregion fakes

// #region fixture

type fixture struct {
	orc      *Orchestrator
	entities *entity.Store
	bus      *collectDispatcher
	exec     *work.Executor
	base     time.Time
}

func newFixture(t *testing.T, cfg config.Config, cls Classifier, corr Correlator, clock func() time.Time) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "cognition.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg, err := trigger.NewRegistry(db)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for _, d := range []trigger.Definition{
		{Key: "edr.proc.spawn", Hash: "hash-proc", ToolID: "edr"},
		{Key: "net.beacon", Hash: "hash-beacon", ToolID: "ndr"},
	} {
		if err := reg.Register(d); err != nil {
			t.Fatalf("register %s: %v", d.Key, err)
		}
	}

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if clock == nil {
		clock = func() time.Time { return base }
	}

	ents := entity.NewStore()
	bus := &collectDispatcher{}
	exec := work.NewExecutor(2, nil)
	t.Cleanup(exec.Shutdown)

	orc := New(cfg, Options{
		Registry:   reg,
		Router:     archetype.NewRouter(cfg.RouterSlots),
		Entities:   ents,
		Classifier: cls,
		Dispatcher: bus,
		Executor:   exec,
		Correlator: corr,
		Now:        clock,
	})
	return &fixture{orc: orc, entities: ents, bus: bus, exec: exec, base: base}
}

// #endregion fixture

// #region tests

func TestCycleUpdatesBeliefAndIntensity(t *testing.T) {
	cfg := config.Default()
	cfg.HawkesMu = 0.05
	cfg.HawkesBeta = 0.5
	cfg.HawkesAlpha = 0.3

	cls := &fakeClassifier{verdict: classifier.Verdict{
		TacticLabel: "persistence",
		Confidence:  0.9,
		IsThreat:    true,
	}}
	f := newFixture(t, cfg, cls, nil, nil)

	lastTick := f.base.Add(-time.Second).UnixNano()
	f.entities.Update("edr.proc.spawn", lastTick, func(e *entity.Entity) {
		e.Phase = entity.PhaseDetect
		e.Belief = entity.Belief{
			Prior:     fixedpoint.FromUnit(0.2),
			Posterior: fixedpoint.FromUnit(0.2),
			Level:     entity.ThreatLow,
		}
		e.Intensity = 0
	})

	res, err := f.orc.Cycle(context.Background(), Observation{
		TriggerKey: "edr.proc.spawn",
		OccurredAt: f.base.Add(-10 * time.Second),
	})
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}

	// prior 0.2, likelihood ratio 0.9/0.5 = 1.8:
	// odds 0.25×1.8 = 0.45, posterior 0.45/1.45 = 0.310345.
	e := res.Entity
	if e.Belief.Posterior != 310_345 {
		t.Fatalf("posterior = %d, want 310345", int64(e.Belief.Posterior))
	}
	if e.Belief.Prior != 211_034 {
		t.Fatalf("new prior = %d, want 211034", int64(e.Belief.Prior))
	}
	if e.Belief.Level != entity.ThreatMedium {
		t.Fatalf("level = %s, want medium", e.Belief.Level)
	}
	// cold intensity over 1s with an event: 0.05 + 0·e^(−0.5) + 0.3 = 0.35.
	if e.Intensity != 350_000 {
		t.Fatalf("intensity = %d, want 350000", int64(e.Intensity))
	}
	if e.Delta.Semantic != fixedpoint.FromUnit(0.5) {
		t.Fatalf("semantic = %d, want 500000", int64(e.Delta.Semantic))
	}
	if e.Delta.Operational != fixedpoint.FromUnit(0.25) {
		t.Fatalf("operational = %d, want 250000", int64(e.Delta.Operational))
	}
	if e.Delta.Temporal != fixedpoint.One {
		t.Fatalf("temporal = %d, want 1000000", int64(e.Delta.Temporal))
	}
	if res.Escalated || res.Degraded {
		t.Fatalf("escalated=%v degraded=%v, want neither", res.Escalated, res.Degraded)
	}
	if e.Phase != entity.PhaseDetect {
		t.Fatalf("phase advanced without escalation: %s", e.Phase)
	}
	if len(f.bus.all()) != 0 {
		t.Fatalf("unexpected dispatch: %+v", f.bus.all())
	}
}

func TestCycleDegradesOnClassifierFailure(t *testing.T) {
	cfg := config.Default()
	cls := &fakeClassifier{err: errors.New("deadline exceeded")}
	f := newFixture(t, cfg, cls, nil, nil)

	seeded := fixedpoint.FromUnit(0.4)
	lastTick := f.base.Add(-time.Second).UnixNano()
	f.entities.Update("edr.proc.spawn", lastTick, func(e *entity.Entity) {
		e.Belief.Posterior = seeded
		e.Belief.Prior = seeded
		e.Intensity = fixedpoint.FromFloat(0.8)
	})

	res, err := f.orc.Cycle(context.Background(), Observation{TriggerKey: "edr.proc.spawn"})
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !res.Degraded {
		t.Fatal("cycle not marked degraded")
	}
	if res.Entity.Belief.Posterior != seeded || res.Entity.Belief.Prior != seeded {
		t.Fatalf("belief changed in degraded cycle: %+v", res.Entity.Belief)
	}

	// Decay only over 1s: 0.1 + 0.8×e^(−1).
	want := fixedpoint.FromFloat(cfg.HawkesMu + 0.8*math.Exp(-cfg.HawkesBeta))
	if res.Entity.Intensity != want {
		t.Fatalf("intensity = %d, want %d", int64(res.Entity.Intensity), int64(want))
	}
	if res.Escalated {
		t.Fatal("degraded cycle escalated")
	}
}

func TestCycleEscalatesOnPosterior(t *testing.T) {
	cfg := config.Default()
	cls := &fakeClassifier{verdict: classifier.Verdict{
		TacticLabel: "exfiltration",
		Confidence:  0.95,
		IsThreat:    true,
	}}
	f := newFixture(t, cfg, cls, nil, nil)

	tick := f.base.UnixNano()
	f.entities.Update("net.beacon", tick, func(e *entity.Entity) {
		e.Phase = entity.PhaseDisrupt
		e.Belief = entity.Belief{
			Prior:     fixedpoint.FromUnit(0.7),
			Posterior: fixedpoint.FromUnit(0.7),
			Level:     entity.ThreatMedium,
		}
	})

	res, err := f.orc.Cycle(context.Background(), Observation{
		TriggerKey: "net.beacon",
		OccurredAt: f.base,
	})
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !res.Escalated {
		t.Fatalf("expected escalation, posterior = %v", res.Entity.Belief.Posterior.Float())
	}
	// High level, semantic 0.9 ≥ operational 0.5 → isolate.
	if res.Fire == nil || res.Fire.TriggerCode != rules.CodeDisableIsolate {
		t.Fatalf("fire = %+v, want isolate", res.Fire)
	}
	if res.Entity.Phase != entity.PhaseDisable {
		t.Fatalf("phase = %s, want disable", res.Entity.Phase)
	}

	envs := f.bus.all()
	if len(envs) != 1 {
		t.Fatalf("dispatched %d envelopes, want 1", len(envs))
	}
	env := envs[0]
	if env.EventID == "" || env.EventID != res.EventID {
		t.Fatalf("envelope id mismatch: %q vs %q", env.EventID, res.EventID)
	}
	if env.TriggerKey != "net.beacon" || env.Fire.Action != "isolate-segment" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestCycleEscalatesOnIntensity(t *testing.T) {
	cfg := config.Default()
	cls := &fakeClassifier{verdict: classifier.Verdict{
		TacticLabel: "reconnaissance",
		Confidence:  0.5,
		IsThreat:    false,
	}}
	f := newFixture(t, cfg, cls, nil, nil)

	tick := f.base.UnixNano()
	f.entities.Update("edr.proc.spawn", tick, func(e *entity.Entity) {
		e.Intensity = fixedpoint.FromFloat(2.0)
	})

	res, err := f.orc.Cycle(context.Background(), Observation{
		TriggerKey: "edr.proc.spawn",
		OccurredAt: f.base,
	})
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	// No decay over zero elapsed: 0.1 + 2.0 = 2.1 > 1.0.
	if !res.Escalated {
		t.Fatalf("expected intensity escalation, intensity = %v", res.Entity.Intensity.Float())
	}
	// Posterior held at the 0.5 start → medium, fresh event → deepscan.
	if res.Fire.TriggerCode != rules.CodeDetectDeepScan {
		t.Fatalf("code = %s, want deepscan", res.Fire.TriggerCode)
	}
}

func TestCycleRejectsUnknownTrigger(t *testing.T) {
	f := newFixture(t, config.Default(), &fakeClassifier{}, nil, nil)
	_, err := f.orc.Cycle(context.Background(), Observation{TriggerKey: "never.registered"})
	if !errors.Is(err, trigger.ErrUnknownTrigger) {
		t.Fatalf("err = %v, want ErrUnknownTrigger", err)
	}
	if f.entities.Len() != 0 {
		t.Fatalf("entity created for unknown key")
	}
}

func TestCycleReportsBudgetOverrun(t *testing.T) {
	cfg := config.Default()
	cfg.CycleBudget = 5 * time.Millisecond
	clock := &stepClock{t: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), step: 10 * time.Millisecond}

	f := newFixture(t, cfg, &fakeClassifier{verdict: classifier.Verdict{IsThreat: false}}, nil, clock.Now)
	res, err := f.orc.Cycle(context.Background(), Observation{TriggerKey: "edr.proc.spawn"})
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !res.OverBudget {
		t.Fatalf("overrun not reported, elapsed = %v", res.Elapsed)
	}
}

func TestCoactivationReinforcesPeers(t *testing.T) {
	corr := &fakeCorrelator{}
	f := newFixture(t, config.Default(), &fakeClassifier{verdict: classifier.Verdict{IsThreat: false}}, corr, nil)

	ctx := context.Background()
	if _, err := f.orc.Cycle(ctx, Observation{TriggerKey: "edr.proc.spawn"}); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if _, err := f.orc.Cycle(ctx, Observation{TriggerKey: "net.beacon"}); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	f.exec.Shutdown()

	corr.mu.Lock()
	defer corr.mu.Unlock()
	if len(corr.pairs) != 1 {
		t.Fatalf("reinforced %d pairs, want 1", len(corr.pairs))
	}
	if corr.pairs[0] != [2]string{"net.beacon", "edr.proc.spawn"} {
		t.Fatalf("pair = %v", corr.pairs[0])
	}
}

// #endregion tests
