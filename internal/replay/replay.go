// Package replay re-runs recorded observation fixtures through a fresh,
// fully in-memory pipeline. Classifier verdicts come from the fixture, so a
// replay is deterministic and needs no external services.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/vireosec/hd4-controller/internal/archetype"
	"github.com/vireosec/hd4-controller/internal/audit"
	"github.com/vireosec/hd4-controller/internal/classifier"
	"github.com/vireosec/hd4-controller/internal/cognition"
	"github.com/vireosec/hd4-controller/internal/config"
	"github.com/vireosec/hd4-controller/internal/dispatch"
	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/trigger"
	"github.com/vireosec/hd4-controller/internal/work"
)

// #region fixture

// TriggerDef is a registry entry captured in a fixture.
type TriggerDef struct {
	Key    string `json:"key"`
	Hash   string `json:"hash"`
	ToolID string `json:"tool_id,omitempty"`
}

// Step is one recorded observation. A nil Verdict replays a classifier
// outage, driving the degraded path.
type Step struct {
	TriggerKey string              `json:"trigger_key"`
	Context    string              `json:"context,omitempty"`
	At         time.Time           `json:"at"`
	Verdict    *classifier.Verdict `json:"verdict,omitempty"`
}

// Fixture is a named, self-contained replay scenario.
type Fixture struct {
	Name     string       `json:"name"`
	Triggers []TriggerDef `json:"triggers"`
	Steps    []Step       `json:"steps"`
}

// LoadFixture reads a fixture from a JSON file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return fx, nil
}

// SaveFixture writes a fixture as indented JSON.
func SaveFixture(path string, fx Fixture) error {
	data, err := json.MarshalIndent(fx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// #endregion fixture

// #region resolver

// errNoVerdict makes a step with no recorded verdict replay as an outage.
var errNoVerdict = errors.New("replay: no recorded verdict")

// staticResolver serves trigger definitions from the fixture.
type staticResolver map[string]trigger.Definition

func (r staticResolver) Lookup(key string) (trigger.Definition, error) {
	d, ok := r[key]
	if !ok {
		return trigger.Definition{}, fmt.Errorf("%w: %s", trigger.ErrUnknownTrigger, key)
	}
	return d, nil
}

// scriptedClassifier replays the current step's verdict.
type scriptedClassifier struct {
	mu      sync.Mutex
	verdict *classifier.Verdict
}

func (s *scriptedClassifier) set(v *classifier.Verdict) {
	s.mu.Lock()
	s.verdict = v
	s.mu.Unlock()
}

func (s *scriptedClassifier) Classify(ctx context.Context, req classifier.Request) (classifier.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verdict == nil {
		return classifier.Verdict{}, errNoVerdict
	}
	return *s.verdict, nil
}

// collectDispatcher keeps dispatched envelopes in memory.
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

// #endregion resolver

// #region run

// Report is the outcome of one replay.
type Report struct {
	Name        string
	Cycles      int
	Escalations int
	Degraded    int
	Levels      map[string]int // final entity count per threat level
	Results     []cognition.CycleResult
	Envelopes   []dispatch.Envelope
	Violations  []audit.Violation
}

// Run replays a fixture against a fresh pipeline built from cfg and audits
// the final entity set.
func Run(ctx context.Context, cfg config.Config, fx Fixture, log *slog.Logger) (Report, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(fx.Steps) == 0 {
		return Report{}, fmt.Errorf("fixture %s has no steps", fx.Name)
	}

	resolver := make(staticResolver, len(fx.Triggers))
	for _, d := range fx.Triggers {
		resolver[d.Key] = trigger.Definition{Key: d.Key, Hash: d.Hash, ToolID: d.ToolID}
	}

	cls := &scriptedClassifier{}
	bus := &collectDispatcher{}
	entities := entity.NewStore()
	exec := work.NewExecutor(1, log)

	var clockMu sync.Mutex
	now := fx.Steps[0].At
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}

	orc := cognition.New(cfg, cognition.Options{
		Registry:   resolver,
		Router:     archetype.NewRouter(cfg.RouterSlots),
		Entities:   entities,
		Classifier: cls,
		Dispatcher: bus,
		Executor:   exec,
		Logger:     log,
		Now:        clock,
	})

	rep := Report{Name: fx.Name, Levels: make(map[string]int)}
	for i, step := range fx.Steps {
		clockMu.Lock()
		now = step.At
		clockMu.Unlock()
		cls.set(step.Verdict)

		res, err := orc.Cycle(ctx, cognition.Observation{
			TriggerKey: step.TriggerKey,
			Context:    step.Context,
			OccurredAt: step.At,
		})
		if err != nil {
			exec.Shutdown()
			return rep, fmt.Errorf("step %d (%s): %w", i, step.TriggerKey, err)
		}
		rep.Results = append(rep.Results, res)
		rep.Cycles++
		if res.Escalated {
			rep.Escalations++
		}
		if res.Degraded {
			rep.Degraded++
		}
	}
	exec.Shutdown()

	snapshots := entities.Snapshot()
	for _, e := range snapshots {
		rep.Levels[e.Belief.Level.String()]++
	}
	rep.Envelopes = append(rep.Envelopes, bus.envs...)
	rep.Violations = audit.NewAuditor(orc.Tracker().Params()).CheckAll(snapshots)
	return rep, nil
}

// #endregion run
