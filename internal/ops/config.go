// Package ops resolves the JSON runtime configuration into constructed
// pipeline inputs: the instrument registry, the strategy set, and the
// component configs the binaries wire together. Durations are plain
// millisecond integers in the file.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/internal/bars"
	"main/internal/broker"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
	"main/pkg/conn"
)

// Feed modes.
const (
	FeedModeWalk   = "walk"
	FeedModeStream = "stream"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Registry RegistryConfig `json:"registry"`
	Feed     FeedConfig     `json:"feed"`
	Bars     BarsConfig     `json:"bars"`
	Strategy StrategyConfig `json:"strategy"`
	Risk     RiskConfig     `json:"risk"`
	Broker   BrokerConfig   `json:"broker"`
	Journal  JournalConfig  `json:"journal"`
	Store    *StoreConfig   `json:"store"`
	Bus      BusConfig      `json:"bus"`
	Session  SessionConfig  `json:"session"`
}

// RegistryConfig defines venue and symbol mappings.
type RegistryConfig struct {
	Venues  []VenueConfig  `json:"venues"`
	Symbols []SymbolConfig `json:"symbols"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `json:"name"`
}

// SymbolConfig describes a tradable symbol entry.
type SymbolConfig struct {
	Name  string `json:"name"`
	Venue string `json:"venue"`
}

// FeedConfig selects and parameterizes the tick source.
type FeedConfig struct {
	Mode   string           `json:"mode"`
	Walk   WalkFeedConfig   `json:"walk"`
	Stream StreamFeedConfig `json:"stream"`
}

// WalkFeedConfig parameterizes the simulated random-walk feed.
type WalkFeedConfig struct {
	BasePrice float64 `json:"basePrice"`
	StepPct   float64 `json:"stepPct"`
	MaxVolume int64   `json:"maxVolume"`
	TickMs    int64   `json:"tickMs"`
	Seed      int64   `json:"seed"`
}

// StreamFeedConfig parameterizes the venue websocket feed. Subscribed
// symbols come from the registry section.
type StreamFeedConfig struct {
	URL    string `json:"url"`
	Source uint16 `json:"source"`
}

// BarsConfig parameterizes bar aggregation.
type BarsConfig struct {
	IntervalMs int64 `json:"intervalMs"`
	History    int   `json:"history"`
	RingSize   int   `json:"ringSize"`
}

// StrategyConfig selects strategies and their aggregation weights. A nil
// strategy section leaves that strategy out of the engine.
type StrategyConfig struct {
	MinConfidence float64                 `json:"minConfidence"`
	Weights       map[string]float64      `json:"weights"`
	Breakout      *BreakoutStrategyConfig `json:"breakout"`
	Momentum      *MomentumStrategyConfig `json:"momentum"`
}

// BreakoutStrategyConfig mirrors strategy.BreakoutConfig.
type BreakoutStrategyConfig struct {
	RewardRatio      float64 `json:"rewardRatio"`
	RetestCutoffBars int     `json:"retestCutoffBars"`
}

// MomentumStrategyConfig mirrors strategy.MomentumConfig.
type MomentumStrategyConfig struct {
	FastWindow int     `json:"fastWindow"`
	SlowWindow int     `json:"slowWindow"`
	Deadband   float64 `json:"deadband"`
}

// RiskConfig carries the gate, sizer, and session guard settings. Bump
// gate.version to have a running session pick new limits up.
type RiskConfig struct {
	Gate           risk.GateConfig  `json:"gate"`
	Sizer          risk.SizerConfig `json:"sizer"`
	DailyLossLimit float64          `json:"dailyLossLimit"`
	DrawdownTiers  []float64        `json:"drawdownTiers"`
}

// BrokerConfig parameterizes the order sink.
type BrokerConfig struct {
	Workers         int              `json:"workers"`
	QueueSize       int              `json:"queueSize"`
	SubmitTimeoutMs int64            `json:"submitTimeoutMs"`
	Paper           PaperVenueConfig `json:"paper"`
}

// PaperVenueConfig parameterizes the simulated venue.
type PaperVenueConfig struct {
	TwoPartFills bool  `json:"twoPartFills"`
	LatencyMs    int64 `json:"latencyMs"`
}

// JournalConfig locates the event journal and snapshot. An empty dir
// disables journaling and recovery.
type JournalConfig struct {
	Dir          string `json:"dir"`
	FilePrefix   string `json:"filePrefix"`
	SnapshotPath string `json:"snapshotPath"`
}

// StoreConfig enables the Postgres audit trail. A nil section disables it.
type StoreConfig struct {
	Postgres  conn.Option `json:"postgres"`
	QueueSize int         `json:"queueSize"`
}

// BusConfig sizes the in-memory queues.
type BusConfig struct {
	LaneDepth     int `json:"laneDepth"`
	FillQueueSize int `json:"fillQueueSize"`
}

// SessionConfig carries account and session-clock settings.
type SessionConfig struct {
	InitialCash float64 `json:"initialCash"`
	Timezone    string  `json:"timezone"`
	VWAPTicks   int     `json:"vwapTicks"`
}

// FeedSpec is the resolved feed selection.
type FeedSpec struct {
	Mode   string
	Walk   feed.WalkConfig
	Stream feed.StreamConfig
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	Registry    *schema.Registry
	Instruments []schema.InstrumentID
	Feed        FeedSpec
	Bars        bars.Config
	Engine      strategy.EngineConfig
	Strategies  []strategy.Strategy

	Gate           risk.GateConfig
	Sizer          risk.SizerConfig
	DailyLossLimit float64
	DrawdownTiers  []float64

	Broker broker.Config
	Paper  broker.PaperConfig

	Journal      journal.Config
	SnapshotPath string
	Store        *StoreConfig

	LaneDepth     int
	FillQueueSize int

	Location    *time.Location
	VWAPTicks   int
	InitialCash float64
}

// Load reads the JSON config file, applies defaults, validates it, and
// resolves the registry and strategy set.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return Resolve(cfg)
}

// Resolve turns a parsed FileConfig into wired inputs.
func Resolve(cfg FileConfig) (Loaded, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Loaded{}, err
	}

	registry, instruments, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}

	loc := time.UTC
	if cfg.Session.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Session.Timezone)
		if err != nil {
			return Loaded{}, fmt.Errorf("load timezone %s: %w", cfg.Session.Timezone, err)
		}
	}

	symbols := make([]string, 0, len(cfg.Registry.Symbols))
	for _, sym := range cfg.Registry.Symbols {
		symbols = append(symbols, sym.Name)
	}

	loaded := Loaded{
		Registry:    registry,
		Instruments: instruments,
		Feed: FeedSpec{
			Mode: cfg.Feed.Mode,
			Walk: feed.WalkConfig{
				BasePrice: cfg.Feed.Walk.BasePrice,
				StepPct:   cfg.Feed.Walk.StepPct,
				MaxVolume: cfg.Feed.Walk.MaxVolume,
				Interval:  time.Duration(cfg.Feed.Walk.TickMs) * time.Millisecond,
				Seed:      cfg.Feed.Walk.Seed,
			},
			Stream: feed.StreamConfig{
				URL:     cfg.Feed.Stream.URL,
				Symbols: symbols,
				Source:  cfg.Feed.Stream.Source,
			},
		},
		Bars: bars.Config{
			Interval: time.Duration(cfg.Bars.IntervalMs) * time.Millisecond,
			History:  cfg.Bars.History,
			RingSize: cfg.Bars.RingSize,
		},
		Engine: strategy.EngineConfig{
			MinConfidence: cfg.Strategy.MinConfidence,
			Weights:       cfg.Strategy.Weights,
		},
		Strategies:     buildStrategies(cfg.Strategy, instruments),
		Gate:           cfg.Risk.Gate,
		Sizer:          cfg.Risk.Sizer,
		DailyLossLimit: cfg.Risk.DailyLossLimit,
		DrawdownTiers:  cfg.Risk.DrawdownTiers,
		Broker: broker.Config{
			Workers:       cfg.Broker.Workers,
			QueueSize:     cfg.Broker.QueueSize,
			SubmitTimeout: time.Duration(cfg.Broker.SubmitTimeoutMs) * time.Millisecond,
		},
		Paper: broker.PaperConfig{
			TwoPartFills: cfg.Broker.Paper.TwoPartFills,
			Latency:      time.Duration(cfg.Broker.Paper.LatencyMs) * time.Millisecond,
		},
		SnapshotPath:  cfg.Journal.SnapshotPath,
		Store:         cfg.Store,
		LaneDepth:     cfg.Bus.LaneDepth,
		FillQueueSize: cfg.Bus.FillQueueSize,
		Location:      loc,
		VWAPTicks:     cfg.Session.VWAPTicks,
		InitialCash:   cfg.Session.InitialCash,
	}

	if cfg.Journal.Dir != "" {
		loaded.Journal = journal.DefaultConfig(cfg.Journal.Dir)
		if cfg.Journal.FilePrefix != "" {
			loaded.Journal.FilePrefix = cfg.Journal.FilePrefix
		}
	}
	return loaded, nil
}

func (c FileConfig) withDefaults() FileConfig {
	if c.Feed.Mode == "" {
		c.Feed.Mode = FeedModeWalk
	}
	if c.Bars.IntervalMs == 0 {
		c.Bars.IntervalMs = 60_000
	}
	if c.Bars.History == 0 {
		c.Bars.History = 64
	}
	if c.Bars.RingSize == 0 {
		c.Bars.RingSize = 256
	}
	if c.Strategy.MinConfidence == 0 {
		c.Strategy.MinConfidence = 0.6
	}
	if c.Risk.Gate.Version == 0 {
		c.Risk.Gate.Version = 1
	}
	if c.Risk.Gate.MaxPositions == 0 {
		c.Risk.Gate.MaxPositions = 5
	}
	if c.Risk.Gate.MinCashRatio == 0 {
		c.Risk.Gate.MinCashRatio = 0.10
	}
	if c.Risk.Gate.MaxPositionRatio == 0 {
		c.Risk.Gate.MaxPositionRatio = 0.30
	}
	if c.Risk.Gate.DefaultStopPct == 0 {
		c.Risk.Gate.DefaultStopPct = 0.03
	}
	if c.Risk.Sizer.MinCashRatio == 0 {
		c.Risk.Sizer.MinCashRatio = c.Risk.Gate.MinCashRatio
	}
	if c.Risk.Sizer.MaxPositionRatio == 0 {
		c.Risk.Sizer.MaxPositionRatio = c.Risk.Gate.MaxPositionRatio
	}
	if c.Risk.Sizer.MaxLossPerTrade == 0 {
		c.Risk.Sizer.MaxLossPerTrade = 0.02
	}
	if c.Risk.DrawdownTiers == nil {
		c.Risk.DrawdownTiers = []float64{50_000, 25_000, 15_000, 10_000}
	}
	if c.Bus.LaneDepth == 0 {
		c.Bus.LaneDepth = 1024
	}
	if c.Bus.FillQueueSize == 0 {
		c.Bus.FillQueueSize = 256
	}
	if c.Session.InitialCash == 0 {
		c.Session.InitialCash = 100_000
	}
	if c.Session.VWAPTicks == 0 {
		c.Session.VWAPTicks = 32
	}
	return c
}

func (c FileConfig) validate() error {
	if len(c.Registry.Venues) == 0 {
		return fmt.Errorf("config has no venues")
	}
	if len(c.Registry.Symbols) == 0 {
		return fmt.Errorf("config has no symbols")
	}
	switch c.Feed.Mode {
	case FeedModeWalk:
	case FeedModeStream:
		if c.Feed.Stream.URL == "" {
			return fmt.Errorf("stream feed requires a url")
		}
	default:
		return fmt.Errorf("unknown feed mode: %s", c.Feed.Mode)
	}
	if c.Strategy.Breakout == nil && c.Strategy.Momentum == nil {
		return fmt.Errorf("no strategy enabled")
	}
	if c.Store != nil && c.Store.Postgres.Database == "" && c.Store.Postgres.ConnString == "" {
		return fmt.Errorf("store requires a database or connString")
	}
	if c.Risk.DailyLossLimit < 0 {
		return fmt.Errorf("dailyLossLimit must be >= 0")
	}
	for _, tier := range c.Risk.DrawdownTiers {
		if tier <= 0 {
			return fmt.Errorf("drawdown tiers must be > 0")
		}
	}
	if c.Session.InitialCash <= 0 {
		return fmt.Errorf("initialCash must be > 0")
	}
	return nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, []schema.InstrumentID, error) {
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		if _, err := reg.AddVenue(venue.Name); err != nil {
			return nil, nil, err
		}
	}
	instruments := make([]schema.InstrumentID, 0, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		venueID, ok := reg.VenueIDByName(sym.Venue)
		if !ok {
			return nil, nil, fmt.Errorf("venue not found: %s", sym.Venue)
		}
		id, err := reg.AddInstrument(sym.Name, venueID)
		if err != nil {
			return nil, nil, err
		}
		instruments = append(instruments, id)
	}
	return reg, instruments, nil
}

func buildStrategies(cfg StrategyConfig, instruments []schema.InstrumentID) []strategy.Strategy {
	var out []strategy.Strategy
	if cfg.Breakout != nil {
		out = append(out, strategy.NewBreakoutRetest(strategy.BreakoutConfig{
			RewardRatio:      cfg.Breakout.RewardRatio,
			RetestCutoffBars: cfg.Breakout.RetestCutoffBars,
		}, instruments))
	}
	if cfg.Momentum != nil {
		out = append(out, strategy.NewSMAMomentum(strategy.MomentumConfig{
			FastWindow: cfg.Momentum.FastWindow,
			SlowWindow: cfg.Momentum.SlowWindow,
			Deadband:   cfg.Momentum.Deadband,
		}))
	}
	return out
}
