package hawkes

import (
	"math"
	"testing"
	"time"

	"github.com/vireosec/hd4-controller/internal/fixedpoint"
)

func TestDecayWithoutEvent(t *testing.T) {
	tr := NewTracker(Params{Mu: 0.1, Beta: 1.0, Alpha: 0.5})

	// 0.1 + 1.0·e⁻¹ ≈ 0.467879
	got := tr.Step(fixedpoint.One, time.Second, false)
	want := 0.1 + math.Exp(-1)
	if math.Abs(got.Float()-want) > 1e-6 {
		t.Fatalf("intensity = %v, want ≈ %v", got.Float(), want)
	}
}

func TestJumpOnEvent(t *testing.T) {
	tr := NewTracker(Params{Mu: 0.1, Beta: 1.0, Alpha: 0.5})

	got := tr.Step(fixedpoint.One, time.Second, true)
	want := 0.1 + math.Exp(-1) + 0.5
	if math.Abs(got.Float()-want) > 1e-6 {
		t.Fatalf("intensity = %v, want ≈ %v", got.Float(), want)
	}
}

func TestNeverBelowBaseline(t *testing.T) {
	tr := NewTracker(Params{Mu: 0.05, Beta: 2.0, Alpha: 0.3})

	// Long gaps decay the excited part to nothing; μ remains.
	intensity := fixedpoint.FromFloat(3.0)
	for i := 0; i < 10; i++ {
		intensity = tr.Decay(intensity, time.Hour)
		if intensity.Float() < 0.05 {
			t.Fatalf("intensity %v fell below baseline", intensity.Float())
		}
	}
}

func TestColdStartWithEvent(t *testing.T) {
	tr := NewTracker(Params{Mu: 0.05, Beta: 0.5, Alpha: 0.3})

	got := tr.Step(0, time.Second, true)
	if got != fixedpoint.Fixed(350_000) {
		t.Fatalf("intensity = %d, want 350000 (0.35)", got)
	}
}

func TestNegativeElapsedTreatedAsZero(t *testing.T) {
	tr := NewTracker(DefaultParams())

	got := tr.Step(fixedpoint.One, -time.Second, false)
	// No decay: μ + intensity
	want := 0.1 + 1.0
	if math.Abs(got.Float()-want) > 1e-6 {
		t.Fatalf("intensity = %v, want %v", got.Float(), want)
	}
}
