package ops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func baseConfig() FileConfig {
	return FileConfig{
		Registry: RegistryConfig{
			Venues:  []VenueConfig{{Name: "paper"}},
			Symbols: []SymbolConfig{{Name: "AAPL", Venue: "paper"}, {Name: "MSFT", Venue: "paper"}},
		},
		Strategy: StrategyConfig{
			Momentum: &MomentumStrategyConfig{FastWindow: 5, SlowWindow: 20, Deadband: 0.001},
		},
	}
}

func TestLoadResolvesFullConfig(t *testing.T) {
	raw := `{
		"registry": {
			"venues": [{"name": "paper"}],
			"symbols": [
				{"name": "AAPL", "venue": "paper"},
				{"name": "MSFT", "venue": "paper"}
			]
		},
		"feed": {"mode": "walk", "walk": {"basePrice": 150, "stepPct": 0.002, "tickMs": 250, "seed": 7}},
		"bars": {"intervalMs": 30000, "history": 10, "ringSize": 32},
		"strategy": {
			"minConfidence": 0.7,
			"weights": {"breakout_retest": 2},
			"breakout": {"rewardRatio": 2.5, "retestCutoffBars": 4},
			"momentum": {"fastWindow": 5, "slowWindow": 20, "deadband": 0.001}
		},
		"risk": {
			"gate": {"version": 3, "maxPositions": 4, "minCashRatio": 0.25, "maxPositionRatio": 0.2, "defaultStopPct": 0.02},
			"sizer": {"minCashRatio": 0.25, "maxPositionRatio": 0.2, "maxLossPerTrade": 0.01},
			"dailyLossLimit": 1500,
			"drawdownTiers": [30000, 12000]
		},
		"broker": {"workers": 3, "queueSize": 64, "submitTimeoutMs": 2000, "paper": {"twoPartFills": true, "latencyMs": 5}},
		"journal": {"dir": "/tmp/journal", "filePrefix": "run", "snapshotPath": "/tmp/journal/snapshot.json"},
		"store": {"postgres": {"host": "db.internal", "database": "tradebot"}, "queueSize": 512},
		"bus": {"laneDepth": 128, "fillQueueSize": 32},
		"session": {"initialCash": 50000, "timezone": "America/New_York", "vwapTicks": 16}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Instruments) != 2 {
		t.Fatalf("instrument count mismatch: got %d want 2", len(loaded.Instruments))
	}
	if _, ok := loaded.Registry.InstrumentIDBySymbol("MSFT"); !ok {
		t.Fatalf("MSFT not registered")
	}
	if loaded.Feed.Mode != FeedModeWalk {
		t.Fatalf("feed mode mismatch: got %s want walk", loaded.Feed.Mode)
	}
	if loaded.Feed.Walk.Interval != 250*time.Millisecond {
		t.Fatalf("walk interval mismatch: got %v want 250ms", loaded.Feed.Walk.Interval)
	}
	if loaded.Bars.Interval != 30*time.Second {
		t.Fatalf("bar interval mismatch: got %v want 30s", loaded.Bars.Interval)
	}
	if len(loaded.Strategies) != 2 {
		t.Fatalf("strategy count mismatch: got %d want 2", len(loaded.Strategies))
	}
	if loaded.Engine.MinConfidence != 0.7 {
		t.Fatalf("minConfidence mismatch: got %v want 0.7", loaded.Engine.MinConfidence)
	}
	if loaded.Gate.Version != 3 {
		t.Fatalf("gate version mismatch: got %d want 3", loaded.Gate.Version)
	}
	if loaded.DailyLossLimit != 1500 {
		t.Fatalf("dailyLossLimit mismatch: got %v want 1500", loaded.DailyLossLimit)
	}
	if len(loaded.DrawdownTiers) != 2 || loaded.DrawdownTiers[0] != 30000 {
		t.Fatalf("drawdown tiers mismatch: got %v", loaded.DrawdownTiers)
	}
	if loaded.Broker.SubmitTimeout != 2*time.Second {
		t.Fatalf("submit timeout mismatch: got %v want 2s", loaded.Broker.SubmitTimeout)
	}
	if !loaded.Paper.TwoPartFills || loaded.Paper.Latency != 5*time.Millisecond {
		t.Fatalf("paper config mismatch: got %+v", loaded.Paper)
	}
	if loaded.Journal.Dir != "/tmp/journal" || loaded.Journal.FilePrefix != "run" {
		t.Fatalf("journal config mismatch: got %+v", loaded.Journal)
	}
	if loaded.SnapshotPath != "/tmp/journal/snapshot.json" {
		t.Fatalf("snapshot path mismatch: got %s", loaded.SnapshotPath)
	}
	if loaded.Store == nil || loaded.Store.Postgres.Database != "tradebot" || loaded.Store.QueueSize != 512 {
		t.Fatalf("store config mismatch: got %+v", loaded.Store)
	}
	if loaded.LaneDepth != 128 || loaded.FillQueueSize != 32 {
		t.Fatalf("bus sizes mismatch: got %d/%d want 128/32", loaded.LaneDepth, loaded.FillQueueSize)
	}
	if loaded.Location.String() != "America/New_York" {
		t.Fatalf("location mismatch: got %s", loaded.Location)
	}
	if loaded.VWAPTicks != 16 {
		t.Fatalf("vwapTicks mismatch: got %d want 16", loaded.VWAPTicks)
	}
	if loaded.InitialCash != 50000 {
		t.Fatalf("initialCash mismatch: got %v want 50000", loaded.InitialCash)
	}
}

func TestResolveAppliesDefaults(t *testing.T) {
	loaded, err := Resolve(baseConfig())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if loaded.Feed.Mode != FeedModeWalk {
		t.Fatalf("feed mode mismatch: got %s want walk", loaded.Feed.Mode)
	}
	if loaded.Bars.Interval != time.Minute {
		t.Fatalf("bar interval mismatch: got %v want 1m", loaded.Bars.Interval)
	}
	if loaded.Bars.History != 64 || loaded.Bars.RingSize != 256 {
		t.Fatalf("bars defaults mismatch: got %d/%d", loaded.Bars.History, loaded.Bars.RingSize)
	}
	if loaded.Engine.MinConfidence != 0.6 {
		t.Fatalf("minConfidence default mismatch: got %v want 0.6", loaded.Engine.MinConfidence)
	}
	if len(loaded.Strategies) != 1 {
		t.Fatalf("strategy count mismatch: got %d want 1", len(loaded.Strategies))
	}
	if loaded.Gate.Version != 1 || loaded.Gate.MaxPositions != 5 {
		t.Fatalf("gate defaults mismatch: got %+v", loaded.Gate)
	}
	if loaded.Gate.MinCashRatio != 0.10 || loaded.Gate.MaxPositionRatio != 0.30 || loaded.Gate.DefaultStopPct != 0.03 {
		t.Fatalf("gate ratio defaults mismatch: got %+v", loaded.Gate)
	}
	if loaded.Sizer.MinCashRatio != 0.10 || loaded.Sizer.MaxPositionRatio != 0.30 || loaded.Sizer.MaxLossPerTrade != 0.02 {
		t.Fatalf("sizer defaults mismatch: got %+v", loaded.Sizer)
	}
	if len(loaded.DrawdownTiers) != 4 {
		t.Fatalf("drawdown tier default mismatch: got %v", loaded.DrawdownTiers)
	}
	if loaded.LaneDepth != 1024 || loaded.FillQueueSize != 256 {
		t.Fatalf("bus defaults mismatch: got %d/%d", loaded.LaneDepth, loaded.FillQueueSize)
	}
	if loaded.InitialCash != 100000 {
		t.Fatalf("initialCash default mismatch: got %v want 100000", loaded.InitialCash)
	}
	if loaded.VWAPTicks != 32 {
		t.Fatalf("vwapTicks default mismatch: got %d want 32", loaded.VWAPTicks)
	}
	if loaded.Location != time.UTC {
		t.Fatalf("location mismatch: got %v want UTC", loaded.Location)
	}
	if loaded.Journal.Dir != "" {
		t.Fatalf("journal should stay disabled, got dir %s", loaded.Journal.Dir)
	}
	if loaded.Store != nil {
		t.Fatalf("store should stay disabled, got %+v", loaded.Store)
	}
}

func TestResolveRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*FileConfig)
		want   string
	}{
		{"no venues", func(c *FileConfig) { c.Registry.Venues = nil }, "no venues"},
		{"no symbols", func(c *FileConfig) { c.Registry.Symbols = nil }, "no symbols"},
		{"unknown venue", func(c *FileConfig) { c.Registry.Symbols[0].Venue = "nyse" }, "venue not found"},
		{"unknown feed mode", func(c *FileConfig) { c.Feed.Mode = "tape" }, "unknown feed mode"},
		{"stream without url", func(c *FileConfig) { c.Feed.Mode = FeedModeStream }, "requires a url"},
		{"no strategy", func(c *FileConfig) { c.Strategy.Momentum = nil }, "no strategy"},
		{"store without database", func(c *FileConfig) { c.Store = &StoreConfig{} }, "store requires"},
		{"negative loss limit", func(c *FileConfig) { c.Risk.DailyLossLimit = -1 }, "dailyLossLimit"},
		{"zero tier", func(c *FileConfig) { c.Risk.DrawdownTiers = []float64{10000, 0} }, "drawdown tiers"},
		{"negative cash", func(c *FileConfig) { c.Session.InitialCash = -5 }, "initialCash"},
		{"bad timezone", func(c *FileConfig) { c.Session.Timezone = "Mars/Olympus" }, "load timezone"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			_, err := Resolve(cfg)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error mismatch: got %q want substring %q", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
