// Command backtest re-drives a recorded tick journal through the full
// pipeline offline: bars close, strategies fire, the gate sizes, and the
// paper broker fills, all at playback speed. The run writes its own journal
// and snapshot, so backtest output replays and verifies exactly like a live
// session. Run it with the config the recording session ran with, otherwise
// the instrument IDs in the input journal will not line up.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"main/internal/bars"
	"main/internal/broker"
	"main/internal/bus"
	"main/internal/codec"
	"main/internal/core"
	"main/internal/journal"
	"main/internal/notify"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/portfolio"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
)

// journalSource tags events journaled by backtest runs, keeping them apart
// from live-session events.
const journalSource = 2

type options struct {
	inputDir     string
	inputPrefix  string
	outputDir    string
	outputPrefix string
	speed        float64
	noChecksum   bool
	maxPayload   int
}

func main() {
	inputDir := flag.String("input-dir", "journal", "Recorded journal to read ticks from")
	inputPrefix := flag.String("input-prefix", "", "Input journal file prefix (default: session)")
	configPath := flag.String("config", "", "Path to JSON config (empty=built-in paper session)")
	outputDir := flag.String("output-dir", "journal_backtest", "Journal directory for the backtest session (empty=no journal)")
	outputPrefix := flag.String("output-prefix", "backtest", "Output journal file prefix")
	speed := flag.Float64("speed", 0, "Playback speed (1=recorded pace, 0=full speed)")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	flag.Parse()

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	opts := options{
		inputDir:     *inputDir,
		inputPrefix:  *inputPrefix,
		outputDir:    *outputDir,
		outputPrefix: *outputPrefix,
		speed:        *speed,
		noChecksum:   *noChecksum,
		maxPayload:   *maxPayload,
	}
	if err := run(context.Background(), loaded, opts); err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
}

func run(ctx context.Context, loaded ops.Loaded, opts options) error {
	book := portfolio.NewPortfolio(loaded.InitialCash)

	var j *journal.Journal
	if opts.outputDir != "" {
		cfg := journal.DefaultConfig(opts.outputDir)
		cfg.FilePrefix = opts.outputPrefix
		var err error
		j, err = journal.New(cfg, journalSource)
		if err != nil {
			return err
		}
		if err := j.Start(ctx); err != nil {
			return err
		}
	}

	fills := bus.NewFillQueue(loaded.FillQueueSize)
	lanes := bus.NewLanes(loaded.Instruments, loaded.LaneDepth)
	brk, err := broker.NewBroker(loaded.Broker, broker.NewPaperDelegator(loaded.Paper), fills)
	if err != nil {
		return err
	}

	pipe, err := core.NewPipeline(core.Config{
		Gate:      loaded.Gate,
		Sizer:     loaded.Sizer,
		Location:  loaded.Location,
		VWAPTicks: loaded.VWAPTicks,
	}, core.Deps{
		Registry: loaded.Registry,
		Book:     book,
		Bars:     bars.NewAggregator(loaded.Bars, loaded.Instruments),
		Engine:   strategy.NewEngine(loaded.Engine, loaded.Strategies...),
		Guard:    risk.NewDailyGuard(loaded.DailyLossLimit, loaded.Location),
		Shield:   risk.NewDrawdownShield(loaded.DrawdownTiers, book.TotalEquity()),
		Broker:   brk,
		Fills:    fills,
		Lanes:    lanes,
		Flows:    obs.NewFlowIDs(0),
		Journal:  j,
		Metrics:  obs.NewMetrics(),
		Sinks:    []notify.Sink{notify.LogSink{}},
	})
	if err != nil {
		return err
	}

	pb, err := journal.NewPlayback(journal.PlaybackConfig{
		Dir:             opts.inputDir,
		FilePrefix:      opts.inputPrefix,
		Speed:           opts.speed,
		DisableChecksum: opts.noChecksum,
		MaxPayloadSize:  opts.maxPayload,
	})
	if err != nil {
		return err
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- pipe.Run(ctx)
	}()

	var ticks, skipped int
	pbErr := pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		if header.Type != schema.EventTick {
			return nil
		}
		tick, ok := codec.DecodeTick(payload)
		if !ok {
			return fmt.Errorf("decode tick failed: seq=%d", header.Seq)
		}
		ticks++
		return publishTick(lanes, tick, &skipped)
	})

	lanes.Close()
	runErr := <-runDone
	pipe.Close()

	if pbErr != nil {
		return pbErr
	}
	if runErr != nil {
		return runErr
	}

	var snapErr error
	if j != nil {
		snap := book.SnapshotWithMeta(j.LastSeq(), pipe.LastEventTs())
		path := filepath.Join(opts.outputDir, "positions.json")
		if snapErr = portfolio.WriteSnapshot(path, snap); snapErr == nil {
			log.Printf("snapshot written: %s positions=%d", path, len(snap.Positions))
		}
		if err := j.Close(); err != nil && snapErr == nil {
			snapErr = err
		}
	}

	metrics := pipe.MetricsSnapshot()
	log.Printf("backtest completed: ticks=%d skipped=%d events=%v denies=%v lane_drops=%d",
		ticks, skipped, metrics.EventCounts, metrics.DenyCounts, metrics.LaneDrops)
	log.Printf("result: equity=%.2f cash=%.2f realized=%.2f positions=%d",
		book.TotalEquity(), book.Cash(), book.RealizedPnL(), book.PositionCount())
	return snapErr
}

// publishTick waits out a full lane instead of dropping; a backtest wants
// every recorded tick to land. Ticks for instruments outside the configured
// registry are skipped and counted.
func publishTick(lanes *bus.Lanes, tick schema.Tick, skipped *int) error {
	for {
		err := lanes.Publish(tick)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, bus.ErrLaneFull):
			time.Sleep(100 * time.Microsecond)
		case errors.Is(err, bus.ErrLaneUnknown):
			*skipped++
			return nil
		default:
			return err
		}
	}
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return defaultLoaded()
	}
	return ops.Load(path)
}

func defaultLoaded() (ops.Loaded, error) {
	return ops.Resolve(ops.FileConfig{
		Registry: ops.RegistryConfig{
			Venues: []ops.VenueConfig{{Name: "PAPER"}},
			Symbols: []ops.SymbolConfig{
				{Name: "AAPL", Venue: "PAPER"},
				{Name: "MSFT", Venue: "PAPER"},
			},
		},
		Strategy: ops.StrategyConfig{
			Breakout: &ops.BreakoutStrategyConfig{},
			Momentum: &ops.MomentumStrategyConfig{},
		},
	})
}
