package audit

import (
	"testing"
	"time"

	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/fixedpoint"
	"github.com/vireosec/hd4-controller/internal/hawkes"
)

func cleanEntity() entity.Entity {
	return entity.Entity{
		TriggerKey: "k",
		Phase:      entity.PhaseDetect,
		Delta: entity.DeltaPosition{
			Semantic:    fixedpoint.FromUnit(0.7),
			Operational: fixedpoint.FromUnit(0.25),
			Temporal:    fixedpoint.One,
		},
		Belief: entity.Belief{
			Prior:     fixedpoint.FromUnit(0.2),
			Posterior: fixedpoint.FromUnit(0.31),
			Level:     entity.ThreatMedium,
		},
		Intensity:   fixedpoint.FromFloat(0.35),
		CreatedTick: 1,
		UpdatedTick: 2,
	}
}

func TestCleanEntityPasses(t *testing.T) {
	a := NewAuditor(hawkes.DefaultParams())
	if vs := a.Check(cleanEntity()); len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}
}

func TestPosteriorOutsideOpenInterval(t *testing.T) {
	a := NewAuditor(hawkes.DefaultParams())
	e := cleanEntity()
	e.Belief.Posterior = fixedpoint.Scale // exactly 1.0 is out of the open interval

	vs := a.Check(e)
	if len(vs) != 1 || vs[0].Field != "belief.posterior" {
		t.Fatalf("violations = %v", vs)
	}
}

func TestIntensityBelowBaseline(t *testing.T) {
	a := NewAuditor(hawkes.Params{Mu: 0.1, Beta: 1, Alpha: 0.5})
	e := cleanEntity()
	e.Intensity = fixedpoint.FromFloat(0.05)

	vs := a.Check(e)
	if len(vs) != 1 || vs[0].Field != "intensity" {
		t.Fatalf("violations = %v", vs)
	}
}

func TestFreshEntityIntensityZeroAllowed(t *testing.T) {
	a := NewAuditor(hawkes.DefaultParams())
	e := cleanEntity()
	e.Intensity = 0
	if vs := a.Check(e); len(vs) != 0 {
		t.Fatalf("zero intensity flagged: %v", vs)
	}
}

func TestDeltaAxisOverflow(t *testing.T) {
	a := NewAuditor(hawkes.DefaultParams())
	e := cleanEntity()
	e.Delta.Semantic = fixedpoint.Scale + 1

	vs := a.Check(e)
	if len(vs) != 1 || vs[0].Field != "delta.semantic" {
		t.Fatalf("violations = %v", vs)
	}
}

func TestTickOrdering(t *testing.T) {
	a := NewAuditor(hawkes.DefaultParams())
	e := cleanEntity()
	e.UpdatedTick = 0

	vs := a.Check(e)
	if len(vs) != 1 || vs[0].Field != "updated_tick" {
		t.Fatalf("violations = %v", vs)
	}
}

func TestCheckBudget(t *testing.T) {
	if v := CheckBudget("k", 4*time.Millisecond, 5*time.Millisecond); v != nil {
		t.Fatalf("within budget flagged: %v", v)
	}
	v := CheckBudget("k", 8*time.Millisecond, 5*time.Millisecond)
	if v == nil || v.Field != "cycle_budget" {
		t.Fatalf("overrun not flagged: %v", v)
	}
	if v := CheckBudget("k", time.Hour, 0); v != nil {
		t.Fatalf("disabled budget flagged: %v", v)
	}
}

func TestCheckAllAggregates(t *testing.T) {
	a := NewAuditor(hawkes.DefaultParams())
	bad := cleanEntity()
	bad.Belief.Prior = 0
	vs := a.CheckAll([]entity.Entity{cleanEntity(), bad})
	if len(vs) != 1 || vs[0].Field != "belief.prior" {
		t.Fatalf("violations = %v", vs)
	}
}
