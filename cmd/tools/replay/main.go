// Command replay streams a session journal, prints every event, and then
// rebuilds the book from scratch to check it against the recorded position
// snapshot. Only fills move the book, so the listing doubles as a trail to
// where a diverging replay went wrong.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"main/internal/codec"
	"main/internal/journal"
	"main/internal/portfolio"
	"main/internal/schema"
)

func main() {
	dir := flag.String("dir", "journal", "Journal directory")
	prefix := flag.String("prefix", "", "Journal file prefix (default: session)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "Use receive timestamp for pacing")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Print decoded payloads")
	snapshotPath := flag.String("snapshot", "", "Snapshot to verify against (default: <dir>/positions.json)")
	verify := flag.Bool("verify-snapshot", true, "Rebuild the book and verify it against the snapshot")
	flag.Parse()

	pb, err := journal.NewPlayback(journal.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		UseRecvTime:     *useRecv,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	})
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	ctx := context.Background()
	counts := make(map[schema.EventType]int)
	var index int
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		index++
		counts[header.Type]++
		fmt.Printf("%06d seq=%d type=%s instrument=%d ts_event=%d ts_recv=%d len=%d\n",
			index, header.Seq, header.Type, header.InstrumentID, header.TsEvent, header.TsRecv, len(payload))
		if *decode {
			printDecoded(header.Type, payload)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("playback run failed: %v", err)
	}
	log.Printf("replay completed: total=%d counts=%v", index, counts)

	if !*verify {
		return
	}
	snapPath := *snapshotPath
	if snapPath == "" {
		snapPath = filepath.Join(*dir, "positions.json")
	}
	expected, err := portfolio.ReadSnapshot(snapPath)
	if err != nil {
		log.Fatalf("snapshot read failed: %v", err)
	}
	rec, err := portfolio.Recover(ctx, portfolio.RecoverConfig{
		JournalDir:      *dir,
		FilePrefix:      *prefix,
		InitialCash:     expected.InitialCash,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	})
	if err != nil {
		log.Fatalf("book rebuild failed: %v", err)
	}
	actual := rec.Book.SnapshotWithMeta(rec.LastSeq, rec.LastEventTs)
	if err := portfolio.CompareSnapshots(expected, actual); err != nil {
		log.Fatalf("snapshot verification failed: %v", err)
	}
	log.Printf("snapshot verified: positions=%d fills=%d last_seq=%d snapshot_seq=%d",
		len(actual.Positions), rec.Fills, rec.LastSeq, expected.LastSeq)
}

func printDecoded(t schema.EventType, payload []byte) {
	switch t {
	case schema.EventTick:
		tick, ok := codec.DecodeTick(payload)
		if !ok {
			fmt.Println("  decode Tick failed")
			return
		}
		fmt.Printf("  tick instrument=%d price=%v volume=%d ts=%d\n",
			tick.InstrumentID, tick.Price, tick.Volume, tick.Ts)
	case schema.EventBar:
		bar, ok := codec.DecodeBar(payload)
		if !ok {
			fmt.Println("  decode Bar failed")
			return
		}
		fmt.Printf("  bar instrument=%d start=%d o=%v h=%v l=%v c=%v volume=%d\n",
			bar.InstrumentID, bar.PeriodStart, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	case schema.EventSignal:
		sig, ok := codec.DecodeSignal(payload)
		if !ok {
			fmt.Println("  decode Signal failed")
			return
		}
		fmt.Printf("  signal instrument=%d kind=%s confidence=%.2f stop=%v target=%v strategy=%s reason=%q\n",
			sig.InstrumentID, sig.Kind, sig.Confidence, sig.Stop, sig.Target, sig.Strategy, sig.Reason)
	case schema.EventRiskDecision:
		decision, ok := codec.DecodeRiskDecision(payload)
		if !ok {
			fmt.Println("  decode RiskDecision failed")
			return
		}
		action := "deny"
		if decision.Action == schema.RiskActionAllow {
			action = "allow"
		}
		fmt.Printf("  risk order=%d instrument=%d side=%s action=%s reason=%s qty=%d price=%v detail=%q\n",
			decision.OrderID, decision.InstrumentID, decision.Side, action, decision.Reason,
			decision.Qty, decision.Price, decision.Detail)
	case schema.EventOrderIntent:
		order, ok := codec.DecodeOrderIntent(payload)
		if !ok {
			fmt.Println("  decode OrderIntent failed")
			return
		}
		fmt.Printf("  order id=%d instrument=%d side=%s qty=%d price=%v stop=%v target=%v client=%s\n",
			order.OrderID, order.InstrumentID, order.Side, order.Qty, order.Price, order.Stop, order.Target, order.ClientID)
	case schema.EventFill:
		fill, ok := codec.DecodeFill(payload)
		if !ok {
			fmt.Println("  decode Fill failed")
			return
		}
		fmt.Printf("  fill order=%d instrument=%d side=%s status=%s qty=%d price=%v remaining=%d\n",
			fill.OrderID, fill.InstrumentID, fill.Side, fill.Status, fill.Qty, fill.Price, fill.Remaining)
	case schema.EventNotice:
		notice, ok := codec.DecodeNotice(payload)
		if !ok {
			fmt.Println("  decode Notice failed")
			return
		}
		fmt.Printf("  notice kind=%d instrument=%d amount=%.2f text=%q\n",
			notice.Kind, notice.InstrumentID, notice.Amount, notice.Text)
	}
}
