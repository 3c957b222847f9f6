// Command tradebot runs a trading session end to end: tick feed, bar
// aggregation, strategy evaluation, risk gating, paper execution,
// journaling, and optional Postgres audit. SIGINT or SIGTERM stops the
// feed; in-flight orders drain before the position snapshot is written.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"

	"main/internal/bars"
	"main/internal/broker"
	"main/internal/bus"
	"main/internal/core"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/notify"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/portfolio"
	"main/internal/risk"
	"main/internal/store"
	"main/internal/strategy"
	"main/pkg/conn"
)

// journalSource tags events journaled by this process.
const journalSource = 1

type sessionOptions struct {
	configPath     string
	reloadInterval time.Duration
	recoverBook    bool
	noChecksum     bool
	maxPayload     int
}

func main() {
	configPath := flag.String("config", "", "Path to JSON config (empty=built-in paper session)")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	runFor := flag.Duration("run-for", 0, "Stop after this duration (0=run until signal)")
	recoverEnabled := flag.Bool("recover", false, "Rebuild the book from snapshot + journal before trading")
	recoverNoChecksum := flag.Bool("recover-no-checksum", false, "Disable checksum validation during recovery")
	recoverMaxPayload := flag.Int("recover-max-payload", 0, "Max payload size in bytes during recovery (0=unlimited)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=profiling off)")
	memReport := flag.Duration("mem-report-interval", 0, "Runtime memory report interval (0=disable)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *runFor)
		defer cancel()
	}

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "tradebot",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	if *memReport > 0 {
		var reporter obs.MemoryReporter
		go reporter.Run(ctx, *memReport)
	}

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	opts := sessionOptions{
		configPath:     *configPath,
		reloadInterval: *configReload,
		recoverBook:    *recoverEnabled,
		noChecksum:     *recoverNoChecksum,
		maxPayload:     *recoverMaxPayload,
	}
	if err := runSession(ctx, loaded, opts); err != nil {
		log.Fatalf("session failed: %v", err)
	}
}

func runSession(ctx context.Context, loaded ops.Loaded, opts sessionOptions) error {
	book := portfolio.NewPortfolio(loaded.InitialCash)
	var recovered portfolio.RecoverResult
	if opts.recoverBook {
		if loaded.Journal.Dir == "" {
			return fmt.Errorf("recovery needs a journal dir in the config")
		}
		snapPath := loaded.SnapshotPath
		if snapPath != "" {
			if _, err := os.Stat(snapPath); err != nil {
				log.Printf("snapshot unavailable, replaying the full journal: %v", err)
				snapPath = ""
			}
		}
		rec, err := portfolio.Recover(ctx, portfolio.RecoverConfig{
			JournalDir:      loaded.Journal.Dir,
			SnapshotPath:    snapPath,
			FilePrefix:      loaded.Journal.FilePrefix,
			InitialCash:     loaded.InitialCash,
			DisableChecksum: opts.noChecksum,
			MaxPayloadSize:  opts.maxPayload,
		})
		if err != nil {
			return fmt.Errorf("recover book: %w", err)
		}
		book = rec.Book
		recovered = rec
		log.Printf("recovered book: positions=%d fills=%d last_seq=%d equity=%.2f",
			book.PositionCount(), rec.Fills, rec.LastSeq, book.TotalEquity())
	}

	var j *journal.Journal
	if loaded.Journal.Dir != "" {
		var err error
		j, err = journal.New(loaded.Journal, journalSource)
		if err != nil {
			return err
		}
		if err := j.Start(ctx); err != nil {
			return err
		}
		// New events must sequence after the replayed ones.
		if recovered.LastSeq > 0 {
			j.SetLastSeq(recovered.LastSeq)
		}
	}

	var audit core.Audit
	var auditStore *store.Store
	var client *conn.Client
	if loaded.Store != nil {
		var err error
		client, err = conn.New(loaded.Store.Postgres)
		if err != nil {
			return fmt.Errorf("connect audit store: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("ping audit store: %w", err)
		}
		auditStore, err = store.New(client, loaded.Registry, store.Config{QueueSize: loaded.Store.QueueSize})
		if err != nil {
			return err
		}
		if err := auditStore.Start(ctx); err != nil {
			return err
		}
		audit = auditStore
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
		Audit:    audit,
		Sinks:    []notify.Sink{notify.LogSink{}},
	})
	if err != nil {
		return err
	}

	if opts.configPath != "" && opts.reloadInterval > 0 {
		go watchConfig(ctx, opts.configPath, opts.reloadInterval, func(next ops.Loaded) {
			pipe.UpdateRiskLimits(next.Gate, next.Sizer)
		})
	}

	src, closeSrc, err := buildFeed(ctx, loaded)
	if err != nil {
		return err
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- pipe.Run(ctx)
	}()

	log.Printf("session started: feed=%s instruments=%d journal=%q store=%v",
		loaded.Feed.Mode, len(loaded.Instruments), loaded.Journal.Dir, loaded.Store != nil)

	feedErr := src.Run(ctx, pipe.PublishTick)
	if errors.Is(feedErr, context.Canceled) || errors.Is(feedErr, context.DeadlineExceeded) {
		feedErr = nil
	}
	closeSrc()

	// The feed is the only producer, so closing the lanes lets the
	// pipeline drain in-flight orders and fills before the book settles.
	lanes.Close()
	runErr := <-runDone
	pipe.Close()

	var snapErr error
	if snapPath := resolveSnapshotPath(loaded.Journal.Dir, loaded.SnapshotPath); snapPath != "" {
		var lastSeq uint64
		if j != nil {
			lastSeq = j.LastSeq()
		}
		snap := book.SnapshotWithMeta(lastSeq, pipe.LastEventTs())
		if snapErr = portfolio.WriteSnapshot(snapPath, snap); snapErr == nil {
			log.Printf("snapshot written: %s positions=%d last_seq=%d", snapPath, len(snap.Positions), lastSeq)
		}
	}

	var journalErr error
	if j != nil {
		journalErr = j.Close()
	}
	if auditStore != nil {
		auditStore.Close()
		if n := auditStore.Dropped(); n > 0 {
			log.Printf("audit rows dropped: %d", n)
		}
	}
	if client != nil {
		_ = client.Close()
	}

	metrics := pipe.MetricsSnapshot()
	log.Printf("metrics: events=%v denies=%v lane_drops=%d queue_drops=%d queue_closed=%d event_latency=%+v decision_latency=%+v fill_apply_latency=%+v bar_close_latency=%+v",
		metrics.EventCounts, metrics.DenyCounts, metrics.LaneDrops, metrics.QueueDrops, metrics.QueueClosed,
		metrics.EventLatency, metrics.DecisionLatency, metrics.FillApplyLatency, metrics.BarCloseLatency)
	log.Printf("session ended: equity=%.2f cash=%.2f realized=%.2f positions=%d",
		book.TotalEquity(), book.Cash(), book.RealizedPnL(), book.PositionCount())

	switch {
	case feedErr != nil:
		return feedErr
	case runErr != nil:
		return runErr
	case snapErr != nil:
		return snapErr
	default:
		return journalErr
	}
}

// buildFeed constructs the configured tick source. The returned closer is a
// no-op for the walk generator.
func buildFeed(ctx context.Context, loaded ops.Loaded) (feed.Source, func(), error) {
	switch loaded.Feed.Mode {
	case ops.FeedModeStream:
		stream, err := feed.NewStream(ctx, loaded.Feed.Stream, loaded.Registry)
		if err != nil {
			return nil, nil, err
		}
		return stream, stream.Close, nil
	default:
		walk, err := feed.NewWalk(loaded.Feed.Walk, loaded.Registry)
		if err != nil {
			return nil, nil, err
		}
		return walk, func() {}, nil
	}
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return defaultLoaded()
	}
	return ops.Load(path)
}

// defaultLoaded is the config-less session: two random-walk symbols on the
// paper venue with both strategies at their built-in tunings.
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

func resolveSnapshotPath(dir string, path string) string {
	if path != "" {
		return path
	}
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "positions.json")
}

// watchConfig polls the config file's mtime and hands freshly parsed
// configs to update. Risk limit changes apply only when the gate version
// moves, so repeated reloads of the same file are cheap.
func watchConfig(ctx context.Context, path string, interval time.Duration, update func(ops.Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				log.Printf("config stat failed: %v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := ops.Load(path)
			if err != nil {
				log.Printf("config reload failed: %v", err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			log.Printf("config reloaded: %s", path)
		}
	}
}
