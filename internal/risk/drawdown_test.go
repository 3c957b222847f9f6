package risk

import "testing"

func testTiers() []float64 {
	return []float64{50_000, 25_000, 15_000, 10_000}
}

func TestShieldStepsDownEveryTwoLosses(t *testing.T) {
	s := NewDrawdownShield(testTiers(), 1_000_000)

	if got := s.RiskAmount(); got != 50_000 {
		t.Fatalf("initial tier mismatch: got %v want 50000", got)
	}

	if got := s.Update(-1_000); got != 50_000 {
		t.Fatalf("after 1 loss: got %v want 50000", got)
	}
	if got := s.Update(-1_000); got != 25_000 {
		t.Fatalf("after 2 losses: got %v want 25000", got)
	}
	if got := s.Update(-1_000); got != 25_000 {
		t.Fatalf("after 3 losses: got %v want 25000", got)
	}
	if got := s.Update(-1_000); got != 15_000 {
		t.Fatalf("after 4 losses: got %v want 15000", got)
	}
}

func TestShieldClampsToLastTier(t *testing.T) {
	s := NewDrawdownShield(testTiers(), 1_000_000)

	var got float64
	for i := 0; i < 12; i++ {
		got = s.Update(-500)
	}
	if got != 10_000 {
		t.Fatalf("deep streak tier mismatch: got %v want 10000", got)
	}
}

func TestShieldNewPeakRestoresTopTier(t *testing.T) {
	s := NewDrawdownShield(testTiers(), 1_000_000)

	s.Update(-10_000)
	s.Update(-10_000)
	s.Update(-10_000)
	if got := s.RiskAmount(); got != 25_000 {
		t.Fatalf("streak tier mismatch: got %v want 25000", got)
	}

	// +40,000 lifts equity to 1,010,000, a fresh peak
	if got := s.Update(40_000); got != 50_000 {
		t.Fatalf("new peak must restore the top tier: got %v", got)
	}

	snap := s.Snapshot()
	if snap.LossesSincePeak != 0 {
		t.Fatalf("loss streak not reset: %+v", snap)
	}
	if snap.Peak != 1_010_000 {
		t.Fatalf("peak mismatch: got %v want 1010000", snap.Peak)
	}
}

func TestShieldWinBelowPeakKeepsStreak(t *testing.T) {
	s := NewDrawdownShield(testTiers(), 1_000_000)

	s.Update(-10_000)
	s.Update(-10_000)
	// equity 981,000 stays under the 1,000,000 peak
	if got := s.Update(1_000); got != 25_000 {
		t.Fatalf("win below peak must not reset the tier: got %v", got)
	}
}

func TestShieldCounters(t *testing.T) {
	s := NewDrawdownShield(testTiers(), 1_000_000)

	s.Update(-100)
	s.Update(200)
	s.Update(0)

	snap := s.Snapshot()
	if snap.Trades != 3 || snap.Wins != 1 || snap.Losses != 1 {
		t.Fatalf("counter mismatch: %+v", snap)
	}
}

func TestShieldWithoutTiersIsUnconstrained(t *testing.T) {
	s := NewDrawdownShield(nil, 1_000_000)

	if got := s.Update(-5_000); got != 0 {
		t.Fatalf("tierless shield must report 0: got %v", got)
	}
}
