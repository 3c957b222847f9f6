package notify

import (
	"strings"
	"testing"

	"main/internal/schema"
)

type memorySink struct {
	notices []schema.Notice
}

func (s *memorySink) Notify(notice schema.Notice) {
	s.notices = append(s.notices, notice)
}

func TestTradeExecutedReachesSinksAndRecorder(t *testing.T) {
	sink := &memorySink{}
	var recorded []schema.Notice
	n := NewNotifier(func(notice schema.Notice) { recorded = append(recorded, notice) }, sink)

	n.TradeExecuted(3, "MSFT", schema.OrderSideSell, 25, 412.5, 310.25)

	if len(sink.notices) != 1 || len(recorded) != 1 {
		t.Fatalf("delivery mismatch: got sink=%d recorded=%d want 1/1", len(sink.notices), len(recorded))
	}
	got := sink.notices[0]
	if got.Kind != schema.NoticeTradeExecuted || got.InstrumentID != 3 {
		t.Fatalf("notice mismatch: got kind=%v instrument=%d", got.Kind, got.InstrumentID)
	}
	if got.Amount != 310.25 {
		t.Fatalf("amount mismatch: got %.2f want 310.25", got.Amount)
	}
	if got.Ts == 0 {
		t.Fatalf("ts not defaulted")
	}
	if want := "sell 25 MSFT at 412.50, realized 310.25"; got.Text != want {
		t.Fatalf("text mismatch: got %q want %q", got.Text, want)
	}
}

func TestGuardLockedAndSummaryKinds(t *testing.T) {
	sink := &memorySink{}
	n := NewNotifier(nil, sink)

	n.GuardLocked("daily loss 600.00 reached limit 500.00", -600)
	n.DailySummary(4, -120.5, 99_879.5, false)

	if len(sink.notices) != 2 {
		t.Fatalf("notice count mismatch: got %d want 2", len(sink.notices))
	}
	if sink.notices[0].Kind != schema.NoticeGuardLocked || sink.notices[0].Amount != -600 {
		t.Fatalf("lock notice mismatch: got %+v", sink.notices[0])
	}
	if !strings.HasPrefix(sink.notices[0].Text, "trading locked:") {
		t.Fatalf("lock text mismatch: got %q", sink.notices[0].Text)
	}
	if sink.notices[1].Kind != schema.NoticeDailySummary {
		t.Fatalf("summary kind mismatch: got %v", sink.notices[1].Kind)
	}
	if !strings.Contains(sink.notices[1].Text, "trades 4") || !strings.Contains(sink.notices[1].Text, "locked false") {
		t.Fatalf("summary text mismatch: got %q", sink.notices[1].Text)
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.TradeExecuted(1, "AAPL", schema.OrderSideBuy, 1, 1, 0)
	n.GuardLocked("reason", 0)
	n.DailySummary(0, 0, 0, false)
}
