// Command chaos rewrites a session journal through fault injection. The
// stressed copy feeds the replay tooling, proving recovery and ledger
// reconciliation survive dropped, duplicated, reordered, and late events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"main/internal/bus"
	"main/internal/chaos"
	"main/internal/journal"
	"main/internal/schema"
)

func main() {
	inputDir := flag.String("input-dir", "journal", "Input journal directory")
	inputPrefix := flag.String("input-prefix", "", "Input journal file prefix (default: session)")
	outputDir := flag.String("output-dir", "journal_chaos", "Output journal directory")
	outputPrefix := flag.String("output-prefix", "chaos", "Output journal file prefix")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "Drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "Duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "Reorder window (>=1)")
	maxDelay := flag.Duration("max-delay", 0, "Max receive delay")
	kinds := flag.String("kinds", "", "Comma-separated event kinds to target, e.g. fill or tick,fill (empty=all)")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	flag.Parse()

	targets, err := parseKinds(*kinds)
	if err != nil {
		log.Fatalf("bad kinds: %v", err)
	}
	if *seed == 0 {
		*seed = time.Now().UTC().UnixNano()
	}

	pb, err := journal.NewPlayback(journal.PlaybackConfig{
		Dir:             *inputDir,
		FilePrefix:      *inputPrefix,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	})
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	engine, err := chaos.NewEngine(chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		ReorderWindow: *reorderWindow,
		MaxDelay:      *maxDelay,
		Kinds:         targets,
	})
	if err != nil {
		log.Fatalf("chaos config invalid: %v", err)
	}

	outCfg := journal.DefaultConfig(*outputDir)
	outCfg.FilePrefix = *outputPrefix
	outCfg.CopyPayload = true
	writer, err := journal.NewWriter(outCfg)
	if err != nil {
		log.Fatalf("writer init failed: %v", err)
	}
	ctx := context.Background()
	if err := writer.Start(ctx); err != nil {
		log.Fatalf("writer start failed: %v", err)
	}

	queue := bus.NewQueue(1024)
	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx, func(e bus.Event) {
			for {
				err := writer.TryAppend(e.Header, e.Payload)
				if errors.Is(err, journal.ErrQueueFull) {
					time.Sleep(time.Millisecond)
					continue
				}
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
				return
			}
		})
	}()

	var seq uint64
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		ev := bus.Event{
			Header:  header,
			Payload: copyPayload(payload),
		}
		for _, out := range engine.Process(ev) {
			if err := publishEvent(queue, &seq, out); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("playback failed: %v", err)
	}
	for _, out := range engine.Flush() {
		if err := publishEvent(queue, &seq, out); err != nil {
			log.Fatalf("publish failed: %v", err)
		}
	}

	queue.Close()
	wg.Wait()
	select {
	case err := <-errCh:
		log.Fatalf("append failed: %v", err)
	default:
	}

	if err := writer.Close(); err != nil {
		log.Fatalf("writer close failed: %v", err)
	}
	stats := engine.Stats()
	log.Printf("chaos journal written: seed=%d in=%d out=%d dropped=%d duplicated=%d delayed=%d",
		*seed, stats.In, stats.Out, stats.Dropped, stats.Duplicated, stats.Delayed)
}

// publishEvent resequences the event and hands it to the writer queue,
// waiting out a full queue instead of dropping on the floor.
func publishEvent(queue *bus.Queue, seq *uint64, ev bus.Event) error {
	*seq++
	ev.Header.Seq = *seq
	for {
		err := queue.TryPublish(ev)
		if !errors.Is(err, bus.ErrQueueFull) {
			return err
		}
		time.Sleep(time.Millisecond)
	}
}

func parseKinds(list string) ([]schema.EventType, error) {
	if list == "" {
		return nil, nil
	}
	names := strings.Split(list, ",")
	kinds := make([]schema.EventType, 0, len(names))
	for _, name := range names {
		kind, err := kindByName(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func kindByName(name string) (schema.EventType, error) {
	for kind := schema.EventTick; kind <= schema.EventNotice; kind++ {
		if kind.String() == name {
			return kind, nil
		}
	}
	return schema.EventUnknown, fmt.Errorf("unknown event kind: %s", name)
}

func copyPayload(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return cp
}
