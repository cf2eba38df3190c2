package belief

import (
	"testing"

	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/fixedpoint"
)

func midBelief() entity.Belief {
	return entity.Belief{
		Prior:     fixedpoint.FromUnit(0.5),
		Posterior: fixedpoint.FromUnit(0.5),
		Level:     entity.ThreatMedium,
	}
}

func TestUpdateRaisesPosteriorOnSupportingEvidence(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	res := e.Update(midBelief(), 2.0, true)
	if !res.Updated {
		t.Fatal("expected evidence incorporation")
	}
	if res.Posterior.Float() <= 0.5 {
		t.Fatalf("posterior = %v, want > 0.5 for lr=2.0", res.Posterior.Float())
	}
}

func TestUpdateLowersPosteriorOnWeakEvidence(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	res := e.Update(midBelief(), 0.5, true)
	if res.Posterior.Float() >= 0.5 {
		t.Fatalf("posterior = %v, want < 0.5 for lr=0.5", res.Posterior.Float())
	}
}

func TestUpdateMonotonicInLikelihoodRatio(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	prev := 0.0
	for _, lr := range []float64{0.2, 0.5, 1.0, 1.5, 2.0, 4.0} {
		res := e.Update(midBelief(), lr, true)
		p := res.Posterior.Float()
		if p < prev {
			t.Fatalf("posterior decreased: lr=%v gave %v after %v", lr, p, prev)
		}
		prev = p
	}
}

func TestUpdateSkipsWithoutThreatEvidence(t *testing.T) {
	e := NewEstimator(DefaultConfig())
	b := midBelief()

	res := e.Update(b, 3.0, false)
	if res.Updated {
		t.Fatal("no evidence should be incorporated when isThreat is false")
	}
	if res.Posterior != b.Posterior || res.NewPrior != b.Prior {
		t.Fatalf("belief changed without evidence: %+v", res)
	}
}

func TestUpdateStaysInsideOpenInterval(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	extreme := entity.Belief{
		Prior:     fixedpoint.One, // clamps to Scale-1 internally
		Posterior: fixedpoint.One,
	}
	res := e.Update(extreme, 1000.0, true)
	if res.Posterior <= 0 || res.Posterior >= fixedpoint.One {
		t.Fatalf("posterior %d escaped (0,1)", res.Posterior)
	}
	if res.NewPrior <= 0 || res.NewPrior >= fixedpoint.One {
		t.Fatalf("new prior %d escaped (0,1)", res.NewPrior)
	}

	floor := entity.Belief{Prior: 0, Posterior: 0}
	res = e.Update(floor, 0.001, true)
	if res.Posterior <= 0 {
		t.Fatalf("posterior %d escaped (0,1) at the floor", res.Posterior)
	}
}

func TestKnownUpdateNumbers(t *testing.T) {
	e := NewEstimator(DefaultConfig())
	b := entity.Belief{
		Prior:     fixedpoint.FromUnit(0.2),
		Posterior: fixedpoint.FromUnit(0.2),
	}

	// prior odds 0.25, ×1.8 = 0.45, posterior 0.45/1.45 = 0.310345
	res := e.Update(b, 1.8, true)
	if res.Posterior != fixedpoint.Fixed(310_345) {
		t.Errorf("posterior = %d, want 310345", res.Posterior)
	}
	// 0.9×0.2 + 0.1×0.310345 = 0.211034
	if res.NewPrior != fixedpoint.Fixed(211_034) {
		t.Errorf("new prior = %d, want 211034", res.NewPrior)
	}
	if res.Level != entity.ThreatMedium {
		t.Errorf("level = %s, want medium", res.Level)
	}
}

func TestThreatLevelBoundaries(t *testing.T) {
	e := NewEstimator(DefaultConfig())
	cases := []struct {
		posterior float64
		want      entity.ThreatLevel
	}{
		{0.95, entity.ThreatCritical},
		{0.9, entity.ThreatHigh}, // strict >: exact boundary stays high
		{0.75, entity.ThreatHigh},
		{0.7, entity.ThreatMedium},
		{0.5, entity.ThreatMedium},
		{0.3, entity.ThreatLow},
		{0.1, entity.ThreatLow},
	}
	for _, c := range cases {
		if got := e.LevelFor(c.posterior); got != c.want {
			t.Errorf("LevelFor(%v) = %s, want %s", c.posterior, got, c.want)
		}
	}
}

func TestLikelihoodRatio(t *testing.T) {
	if got := LikelihoodRatio(0.9); got != 1.8 {
		t.Errorf("LikelihoodRatio(0.9) = %v, want 1.8", got)
	}
	if got := LikelihoodRatio(0.5); got != 1.0 {
		t.Errorf("LikelihoodRatio(0.5) = %v, want 1.0", got)
	}
}
