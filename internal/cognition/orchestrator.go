// Package cognition runs the per-event control loop: observe the trigger,
// orient the entity's belief and intensity, decide whether to escalate, and
// act by dispatching fire events. One call to Cycle is one pass.
package cognition

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vireosec/hd4-controller/internal/archetype"
	"github.com/vireosec/hd4-controller/internal/audit"
	"github.com/vireosec/hd4-controller/internal/belief"
	"github.com/vireosec/hd4-controller/internal/classifier"
	"github.com/vireosec/hd4-controller/internal/config"
	"github.com/vireosec/hd4-controller/internal/delta"
	"github.com/vireosec/hd4-controller/internal/dispatch"
	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/fixedpoint"
	"github.com/vireosec/hd4-controller/internal/hawkes"
	"github.com/vireosec/hd4-controller/internal/rules"
	"github.com/vireosec/hd4-controller/internal/store"
	"github.com/vireosec/hd4-controller/internal/trigger"
	"github.com/vireosec/hd4-controller/internal/work"
)

// #region collaborators

// Classifier is the slice of the gRPC client the orchestrator needs.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (classifier.Verdict, error)
}

// Resolver resolves trigger keys to their definitions. *trigger.Registry
// satisfies it; replay substitutes a fixture-backed lookup.
type Resolver interface {
	Lookup(key string) (trigger.Definition, error)
}

// Correlator receives co-activation pairs from background tasks.
type Correlator interface {
	Reinforce(ctx context.Context, a, b string, at time.Time) error
}

// Recorder persists cycle outcomes off the hot path. *store.Store satisfies
// it; nil disables persistence.
type Recorder interface {
	SaveEntity(e entity.Entity) error
	SaveCacheEntry(hash string, p archetype.Pair) error
	LogDecision(entry store.DecisionEntry) error
	RecordEscalation(rec store.EscalationRecord) error
}

// #endregion collaborators

// #region observation

// Observation is one incoming event presented to the loop.
type Observation struct {
	TriggerKey string
	Context    string    // raw event context forwarded to the classifier
	OccurredAt time.Time // event time; zero means "now"
}

// CycleResult summarizes one completed pass.
type CycleResult struct {
	CycleID    string
	Entity     entity.Entity
	Degraded   bool
	Escalated  bool
	Fire       *rules.FireEvent
	EventID    string
	Elapsed    time.Duration
	OverBudget bool
}

// #endregion observation

// #region orchestrator

// coactivationWindow bounds how far apart two observations may be and still
// count as co-active.
const coactivationWindow = 90 * time.Second

// recentCap bounds the co-activation ring.
const recentCap = 8

type recentEntry struct {
	key string
	at  time.Time
}

// Options wires the orchestrator's collaborators. Recorder and Correlator
// may be nil.
type Options struct {
	Registry   Resolver
	Router     *archetype.Router
	Entities   *entity.Store
	Classifier Classifier
	Dispatcher dispatch.Dispatcher
	Executor   *work.Executor
	Recorder   Recorder
	Correlator Correlator
	Logger     *slog.Logger
	Now        func() time.Time
}

// Orchestrator drives the observe/orient/decide/act loop.
type Orchestrator struct {
	cfg        config.Config
	registry   Resolver
	router     *archetype.Router
	entities   *entity.Store
	estimator  *belief.Estimator
	tracker    *hawkes.Tracker
	classifier Classifier
	dispatcher dispatch.Dispatcher
	executor   *work.Executor
	recorder   Recorder
	correlator Correlator
	auditor    *audit.Auditor
	log        *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	recent []recentEntry
}

// New builds an orchestrator from configuration and collaborators.
func New(cfg config.Config, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	params := hawkes.Params{
		Mu:    cfg.HawkesMu,
		Beta:  cfg.HawkesBeta,
		Alpha: cfg.HawkesAlpha,
	}
	return &Orchestrator{
		cfg:        cfg,
		registry:   opts.Registry,
		router:     opts.Router,
		entities:   opts.Entities,
		estimator:  belief.NewEstimator(belief.DefaultConfig()),
		tracker:    hawkes.NewTracker(params),
		classifier: opts.Classifier,
		dispatcher: opts.Dispatcher,
		executor:   opts.Executor,
		recorder:   opts.Recorder,
		correlator: opts.Correlator,
		auditor:    audit.NewAuditor(params),
		log:        log,
		now:        now,
	}
}

// Tracker exposes the Hawkes tracker, mainly for audits sharing parameters.
func (o *Orchestrator) Tracker() *hawkes.Tracker {
	return o.tracker
}

// #endregion orchestrator

// #region cycle

// Cycle runs one observe/orient/decide/act pass for obs. Classifier failure
// degrades the cycle instead of failing it: belief is left untouched and the
// intensity only decays. Unknown trigger keys are the one hard error.
func (o *Orchestrator) Cycle(ctx context.Context, obs Observation) (CycleResult, error) {
	start := o.now()
	res := CycleResult{CycleID: uuid.New().String()}

	// Observe: resolve the trigger and its archetype.
	def, err := o.registry.Lookup(obs.TriggerKey)
	if err != nil {
		return res, err
	}
	pair, err := o.router.Resolve(def.Hash)
	if err != nil {
		return res, fmt.Errorf("resolve archetype for %s: %w", obs.TriggerKey, err)
	}

	tick := start.UnixNano()
	prev, created := o.entities.GetOrCreate(obs.TriggerKey, tick)
	var sinceLast time.Duration
	if !created {
		sinceLast = time.Duration(tick - prev.UpdatedTick)
		if sinceLast < 0 {
			sinceLast = 0
		}
	}

	// Orient: classify under the timeout, then fold the evidence in.
	cctx, cancel := context.WithTimeout(ctx, o.cfg.ClassifierTimeout)
	verdict, cerr := o.classifier.Classify(cctx, classifier.Request{
		TriggerKey: obs.TriggerKey,
		Hash:       def.Hash,
		Context:    obs.Context,
	})
	cancel()
	if cerr != nil {
		res.Degraded = true
		o.log.Warn("classifier unavailable, degrading cycle",
			"cycle_id", res.CycleID, "trigger_key", obs.TriggerKey, "error", cerr)
	}

	occurred := obs.OccurredAt
	if occurred.IsZero() {
		occurred = start
	}
	age := start.Sub(occurred)

	snap := o.entities.Update(obs.TriggerKey, tick, func(e *entity.Entity) {
		e.Routing.Hash = def.Hash
		e.Routing.SlotID = pair.SlotID
		e.Routing.ArchetypeID = pair.ArchetypeID
		e.Routing.ToolID = def.ToolID
		if res.Degraded {
			// No evidence this cycle: belief holds, intensity decays.
			e.Intensity = o.tracker.Decay(e.Intensity, sinceLast)
			return
		}
		e.Delta = delta.Compute(verdict.TacticLabel, e.Phase, age)
		r := o.estimator.Update(e.Belief, belief.LikelihoodRatio(verdict.Confidence), verdict.IsThreat)
		e.Belief = entity.Belief{Prior: r.NewPrior, Posterior: r.Posterior, Level: r.Level}
		e.Intensity = o.tracker.Step(e.Intensity, sinceLast, verdict.IsThreat)
	})

	// Decide.
	escalate := snap.Belief.Posterior.Float() > o.cfg.EscalationThreshold ||
		snap.Intensity.Float() > o.cfg.IntensityThreshold
	decision, reason := "hold", "below thresholds"
	if escalate {
		code := codeFor(snap.Belief.Level, snap.Delta)
		snap = o.entities.Update(obs.TriggerKey, tick, func(e *entity.Entity) {
			e.Phase = e.Phase.Next()
			e.Routing.TriggerCode = code
		})
		decision = "escalate"
		reason = fmt.Sprintf("posterior=%.6f intensity=%.6f", snap.Belief.Posterior.Float(), snap.Intensity.Float())

		// Act.
		if fire := rules.Evaluate(code, snap.Delta); fire != nil {
			env := dispatch.NewEnvelope(res.CycleID, obs.TriggerKey, pair.ArchetypeID, *fire)
			if derr := o.dispatcher.Dispatch(ctx, env); derr != nil {
				o.log.Error("dispatch failed",
					"cycle_id", res.CycleID, "trigger_code", code, "error", derr)
			} else {
				res.Escalated = true
				res.Fire = fire
				res.EventID = env.EventID
				o.recordEscalation(res.CycleID, obs.TriggerKey, pair.ArchetypeID, env.EventID, fire)
			}
		} else {
			o.log.Info("escalation held by rule gate",
				"cycle_id", res.CycleID, "trigger_key", obs.TriggerKey, "trigger_code", code)
			reason += "; rule gate held"
		}
	}

	res.Entity = snap
	o.persist(res.CycleID, def.Hash, pair, snap, decision, reason, res.Degraded)
	o.correlate(obs.TriggerKey, start)

	// Debug runs audit the snapshot; violations are diagnostics only.
	if o.log.Enabled(ctx, slog.LevelDebug) {
		for _, v := range o.auditor.Check(snap) {
			o.log.Debug("invariant violation", "cycle_id", res.CycleID, "violation", v.String())
		}
	}

	res.Elapsed = o.now().Sub(start)
	if o.cfg.CycleBudget > 0 && res.Elapsed > o.cfg.CycleBudget {
		res.OverBudget = true
		o.log.Warn("cycle budget exceeded",
			"cycle_id", res.CycleID, "elapsed", res.Elapsed, "budget", o.cfg.CycleBudget)
	}
	return res, nil
}

// codeFor picks the escalation trigger code from the threat level and delta
// position. The mapping is fixed so identical states always escalate the
// same way.
func codeFor(level entity.ThreatLevel, d entity.DeltaPosition) string {
	switch level {
	case entity.ThreatCritical:
		return rules.CodeDominateLockdown
	case entity.ThreatHigh:
		if d.Semantic >= d.Operational {
			return rules.CodeDisableIsolate
		}
		return rules.CodeDisruptContain
	case entity.ThreatMedium:
		if d.Temporal >= fixedpoint.FromUnit(0.5) {
			return rules.CodeDetectDeepScan
		}
		return rules.CodeDetectSweep
	default:
		return rules.CodeDetectSweep
	}
}

// #endregion cycle

// #region background

// persist ships the cycle outcome to the recorder off the hot path.
func (o *Orchestrator) persist(cycleID, hash string, pair archetype.Pair, snap entity.Entity, decision, reason string, degraded bool) {
	if o.recorder == nil {
		return
	}
	entry := store.DecisionEntry{
		CycleID:    cycleID,
		TriggerKey: snap.TriggerKey,
		Phase:      snap.Phase.String(),
		Decision:   decision,
		Reason:     reason,
		Degraded:   degraded,
		Posterior:  snap.Belief.Posterior,
		Intensity:  snap.Intensity,
	}
	o.executor.Submit(func(ctx context.Context) {
		if err := o.recorder.SaveCacheEntry(hash, pair); err != nil {
			o.log.Error("persist cache entry failed", "hash", hash, "error", err)
		}
		if err := o.recorder.SaveEntity(snap); err != nil {
			o.log.Error("persist entity failed", "trigger_key", snap.TriggerKey, "error", err)
		}
		if err := o.recorder.LogDecision(entry); err != nil {
			o.log.Error("persist decision failed", "cycle_id", cycleID, "error", err)
		}
	})
}

// recordEscalation persists a dispatched fire event off the hot path.
func (o *Orchestrator) recordEscalation(cycleID, key string, archetypeID uint64, eventID string, fire *rules.FireEvent) {
	if o.recorder == nil {
		return
	}
	rec := store.EscalationRecord{
		CycleID:     cycleID,
		TriggerKey:  key,
		ArchetypeID: archetypeID,
		TriggerCode: fire.TriggerCode,
		Action:      fire.Action,
		Severity:    fire.Severity.String(),
		EventID:     eventID,
	}
	o.executor.Submit(func(ctx context.Context) {
		if err := o.recorder.RecordEscalation(rec); err != nil {
			o.log.Error("persist escalation failed", "cycle_id", cycleID, "error", err)
		}
	})
}

// correlate reinforces co-activation edges between key and the other keys
// seen inside the window. Fire and forget: the cycle never waits on it.
func (o *Orchestrator) correlate(key string, at time.Time) {
	if o.correlator == nil {
		return
	}
	peers := o.touchRecent(key, at)
	if len(peers) == 0 {
		return
	}
	o.executor.Submit(func(ctx context.Context) {
		for _, peer := range peers {
			if err := o.correlator.Reinforce(ctx, key, peer, at); err != nil {
				o.log.Error("correlation reinforce failed",
					"trigger_key", key, "peer", peer, "error", err)
			}
		}
	})
}

// touchRecent returns the distinct co-active peers for key and records the
// new activation in the ring.
func (o *Orchestrator) touchRecent(key string, at time.Time) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	var peers []string
	kept := o.recent[:0]
	for _, r := range o.recent {
		if at.Sub(r.at) > coactivationWindow {
			continue
		}
		kept = append(kept, r)
		if r.key != key {
			peers = append(peers, r.key)
		}
	}
	kept = append(kept, recentEntry{key: key, at: at})
	if len(kept) > recentCap {
		kept = kept[len(kept)-recentCap:]
	}
	o.recent = kept
	return dedupe(peers)
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// #endregion background
