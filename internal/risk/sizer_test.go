package risk

import (
	"testing"

	"main/internal/schema"
)

func defaultSizer() *Sizer {
	return NewSizer(SizerConfig{
		MinCashRatio:     0.10,
		MaxPositionRatio: 0.30,
		MaxLossPerTrade:  0.02,
	})
}

func TestSizeRatioBoundCase(t *testing.T) {
	s := defaultSizer()

	// reserve cap 90, concentration cap 30, risk cap 100, cash cap 100
	qty := s.Size(1_000_000, 1_000_000, 10_000, 9_800, 1.0, 0)
	if qty != 30 {
		t.Fatalf("quantity mismatch: got %d want 30", qty)
	}
}

func TestSizeConfidenceScaling(t *testing.T) {
	s := defaultSizer()

	testCases := []struct {
		desc       string
		confidence float64
		want       schema.Quantity
	}{
		{"full confidence keeps the cap", 1.0, 30},
		{"zero confidence halves it", 0.0, 15},
		{"midpoint scales to three quarters", 0.5, 22}, // floor(30*0.75)
		{"out-of-range confidence clamps", 4.0, 30},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			qty := s.Size(1_000_000, 1_000_000, 10_000, 9_800, tc.confidence, 0)
			if qty != tc.want {
				t.Fatalf("quantity mismatch: got %d want %d", qty, tc.want)
			}
		})
	}
}

func TestSizeShieldBudgetTightensRiskCap(t *testing.T) {
	s := defaultSizer()

	// risk budget 4,000 over a 200 point stop distance caps at 20 shares
	qty := s.Size(1_000_000, 1_000_000, 10_000, 9_800, 1.0, 4_000)
	if qty != 20 {
		t.Fatalf("quantity mismatch: got %d want 20", qty)
	}

	// a budget looser than the configured fraction changes nothing
	qty = s.Size(1_000_000, 1_000_000, 10_000, 9_800, 1.0, 50_000)
	if qty != 30 {
		t.Fatalf("quantity mismatch: got %d want 30", qty)
	}
}

func TestSizeInvalidStopSkipsRiskCap(t *testing.T) {
	s := defaultSizer()

	// stop at or above price leaves reserve/concentration/cash caps only
	if qty := s.Size(1_000_000, 1_000_000, 10_000, 10_000, 1.0, 0); qty != 30 {
		t.Fatalf("quantity mismatch: got %d want 30", qty)
	}
	if qty := s.Size(1_000_000, 1_000_000, 10_000, 0, 1.0, 0); qty != 30 {
		t.Fatalf("quantity mismatch: got %d want 30", qty)
	}
}

func TestSizeFloorsToOneShare(t *testing.T) {
	s := NewSizer(SizerConfig{MaxPositionRatio: 0.1, MaxLossPerTrade: 1})

	// caps: reserve 1, concentration 1, cash 1; half confidence scales the
	// single share to 0.5, which floors back up to 1
	if qty := s.Size(150, 1_000, 100, 0, 0, 0); qty != 1 {
		t.Fatalf("quantity mismatch: got %d want 1", qty)
	}
}

func TestSizeZeroConditions(t *testing.T) {
	s := defaultSizer()

	testCases := []struct {
		desc         string
		cash, equity float64
		price, stop  schema.Price
	}{
		{"zero price", 1_000_000, 1_000_000, 0, 0},
		{"negative price", 1_000_000, 1_000_000, -1, 0},
		{"zero equity", 1_000_000, 0, 10_000, 0},
		{"cash below reserve", 90_000, 1_000_000, 10_000, 0},
		{"no cash at all", 0, 1_000_000, 10_000, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			if qty := s.Size(tc.cash, tc.equity, tc.price, tc.stop, 1.0, 0); qty != 0 {
				t.Fatalf("expected zero quantity, got %d", qty)
			}
		})
	}

	// an unset concentration ratio is a zero cap, not unconstrained
	zeroConc := NewSizer(SizerConfig{MinCashRatio: 0.1, MaxLossPerTrade: 0.02})
	if qty := zeroConc.Size(1_000_000, 1_000_000, 10_000, 9_800, 1.0, 0); qty != 0 {
		t.Fatalf("expected zero quantity with zero concentration cap, got %d", qty)
	}
}
