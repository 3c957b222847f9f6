package portfolio

import (
	"context"
	"path/filepath"
	"testing"

	"main/internal/codec"
	"main/internal/journal"
	"main/internal/schema"
)

type journaledSession struct {
	dir  string
	book *Portfolio
	j    *journal.Journal
}

func startSession(t *testing.T, initialCash float64) *journaledSession {
	t.Helper()
	dir := t.TempDir()
	j, err := journal.New(journal.DefaultConfig(dir), 1)
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("start journal: %v", err)
	}
	return &journaledSession{dir: dir, book: NewPortfolio(initialCash), j: j}
}

func (s *journaledSession) submit(t *testing.T, intent schema.OrderIntent) {
	t.Helper()
	if _, err := s.j.Record(schema.EventOrderIntent, intent.InstrumentID, intent.OrderID, intent.Ts, codec.EncodeOrderIntent(nil, intent)); err != nil {
		t.Fatalf("journal intent: %v", err)
	}
}

func (s *journaledSession) fill(t *testing.T, fill schema.Fill, stop, target schema.Price) {
	t.Helper()
	if _, err := s.j.Record(schema.EventFill, fill.InstrumentID, fill.OrderID, fill.Ts, codec.EncodeFill(nil, fill)); err != nil {
		t.Fatalf("journal fill: %v", err)
	}
	s.book.ApplyFill(fill, stop, target)
}

func TestRecoverFromSnapshotAndJournalTail(t *testing.T) {
	s := startSession(t, 10_000)

	s.submit(t, schema.OrderIntent{OrderID: 1, InstrumentID: 7, Side: schema.OrderSideBuy, Qty: 10, Price: 100, Stop: 95, Target: 120, Ts: 1000})
	s.fill(t, schema.Fill{OrderID: 1, InstrumentID: 7, Side: schema.OrderSideBuy, Status: schema.FillStatusFilled, Qty: 10, Price: 100, Ts: 1100}, 95, 120)
	s.submit(t, schema.OrderIntent{OrderID: 2, InstrumentID: 7, Side: schema.OrderSideBuy, Qty: 5, Price: 102, Stop: 96, Target: 118, Ts: 2000})
	s.fill(t, schema.Fill{OrderID: 2, InstrumentID: 7, Side: schema.OrderSideBuy, Status: schema.FillStatusFilled, Qty: 5, Price: 102, Ts: 2100}, 96, 118)

	snapPath := filepath.Join(s.dir, "book.json")
	if err := WriteSnapshot(snapPath, s.book.SnapshotWithMeta(s.j.LastSeq(), 2100)); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	s.submit(t, schema.OrderIntent{OrderID: 3, InstrumentID: 7, Side: schema.OrderSideSell, Qty: 6, Price: 108, Ts: 3000})
	s.fill(t, schema.Fill{OrderID: 3, InstrumentID: 7, Side: schema.OrderSideSell, Status: schema.FillStatusFilled, Qty: 6, Price: 108, Ts: 3100}, 0, 0)

	if err := s.j.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}
	final := s.book.SnapshotWithMeta(s.j.LastSeq(), 3100)

	rec, err := Recover(context.Background(), RecoverConfig{
		JournalDir:   s.dir,
		SnapshotPath: snapPath,
	})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rec.Fills != 1 {
		t.Fatalf("tail fill count mismatch: got %d want 1", rec.Fills)
	}
	if rec.LastSeq != 6 {
		t.Fatalf("last seq mismatch: got %d want 6", rec.LastSeq)
	}
	if err := CompareSnapshots(final, rec.Book.Snapshot()); err != nil {
		t.Fatalf("rebuilt book mismatch: %v", err)
	}
	if stop, target := rec.Book.PositionStops(7); stop != 96 || target != 118 {
		t.Fatalf("recovered marks mismatch: stop=%v target=%v", stop, target)
	}
}

func TestRecoverFromJournalAlone(t *testing.T) {
	s := startSession(t, 10_000)

	s.submit(t, schema.OrderIntent{OrderID: 1, InstrumentID: 7, Side: schema.OrderSideBuy, Qty: 10, Price: 100, Stop: 95, Target: 120, Ts: 1000})
	s.fill(t, schema.Fill{OrderID: 1, InstrumentID: 7, Side: schema.OrderSideBuy, Status: schema.FillStatusFilled, Qty: 10, Price: 100, Ts: 1100}, 95, 120)
	s.fill(t, schema.Fill{OrderID: 2, InstrumentID: 9, Side: schema.OrderSideBuy, Status: schema.FillStatusFilled, Qty: 4, Price: 250, Ts: 2100}, 0, 0)
	s.fill(t, schema.Fill{OrderID: 3, InstrumentID: 7, Side: schema.OrderSideSell, Status: schema.FillStatusFilled, Qty: 3, Price: 108, Ts: 3100}, 0, 0)

	if err := s.j.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	rec, err := Recover(context.Background(), RecoverConfig{
		JournalDir:  s.dir,
		InitialCash: 10_000,
	})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rec.Fills != 3 {
		t.Fatalf("fill count mismatch: got %d want 3", rec.Fills)
	}
	if err := CompareSnapshots(s.book.Snapshot(), rec.Book.Snapshot()); err != nil {
		t.Fatalf("rebuilt book mismatch: %v", err)
	}
	if stop, _ := rec.Book.PositionStops(7); stop != 95 {
		t.Fatalf("intent marks not restored: stop=%v", stop)
	}
}

func TestRecoverRequiresJournalDir(t *testing.T) {
	if _, err := Recover(context.Background(), RecoverConfig{}); err == nil {
		t.Fatal("missing journal dir not rejected")
	}
}

func TestRecoverAppliesFillSequencedBehindLaterFrame(t *testing.T) {
	dir := t.TempDir()
	w, err := journal.NewWriter(journal.DefaultConfig(dir))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start writer: %v", err)
	}

	// Concurrent producers can land frames out of sequence order: here a
	// tick at seq 3 hits the disk before the fill at seq 2.
	intent := schema.OrderIntent{OrderID: 1, InstrumentID: 7, Side: schema.OrderSideBuy, Qty: 10, Price: 100, Stop: 95, Target: 120, Ts: 1000}
	if err := w.TryAppend(schema.NewHeader(schema.EventOrderIntent, 1, 7, 1, 1000, 1000), codec.EncodeOrderIntent(nil, intent)); err != nil {
		t.Fatalf("append intent: %v", err)
	}
	if err := w.TryAppend(schema.NewHeader(schema.EventTick, 1, 7, 3, 1200, 1200), nil); err != nil {
		t.Fatalf("append tick: %v", err)
	}
	fill := schema.Fill{OrderID: 1, InstrumentID: 7, Side: schema.OrderSideBuy, Status: schema.FillStatusFilled, Qty: 10, Price: 100, Ts: 1100}
	if err := w.TryAppend(schema.NewHeader(schema.EventFill, 1, 7, 2, 1100, 1100), codec.EncodeFill(nil, fill)); err != nil {
		t.Fatalf("append fill: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	rec, err := Recover(context.Background(), RecoverConfig{JournalDir: dir, InitialCash: 10_000})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rec.Fills != 1 {
		t.Fatalf("fill count mismatch: got %d want 1", rec.Fills)
	}
	if qty := rec.Book.PositionQty(7); qty != 10 {
		t.Fatalf("recovered position mismatch: got %d want 10", qty)
	}
	if rec.LastSeq != 3 {
		t.Fatalf("last seq mismatch: got %d want 3", rec.LastSeq)
	}
}

func TestCancelledAndRejectedEventsSkipDuringRecovery(t *testing.T) {
	s := startSession(t, 10_000)

	s.submit(t, schema.OrderIntent{OrderID: 1, InstrumentID: 7, Side: schema.OrderSideBuy, Qty: 10, Price: 100, Ts: 1000})
	s.fill(t, schema.Fill{OrderID: 1, InstrumentID: 7, Side: schema.OrderSideBuy, Status: schema.FillStatusFilled, Qty: 10, Price: 100, Ts: 1100}, 0, 0)

	// Cancel and reject notifications carry no executed quantity.
	if _, err := s.j.Record(schema.EventFill, 7, 2, 2000, codec.EncodeFill(nil, schema.Fill{OrderID: 2, InstrumentID: 7, Status: schema.FillStatusCancelled, Ts: 2000})); err != nil {
		t.Fatalf("journal cancel: %v", err)
	}
	if _, err := s.j.Record(schema.EventFill, 7, 3, 2100, codec.EncodeFill(nil, schema.Fill{OrderID: 3, InstrumentID: 7, Status: schema.FillStatusRejected, Ts: 2100})); err != nil {
		t.Fatalf("journal reject: %v", err)
	}
	if err := s.j.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	rec, err := Recover(context.Background(), RecoverConfig{JournalDir: s.dir, InitialCash: 10_000})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rec.Fills != 1 {
		t.Fatalf("fill count mismatch: got %d want 1", rec.Fills)
	}
	if err := CompareSnapshots(s.book.Snapshot(), rec.Book.Snapshot()); err != nil {
		t.Fatalf("rebuilt book mismatch: %v", err)
	}
}
