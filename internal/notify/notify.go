// Package notify raises operator-facing notices for the events a human
// cares about between daily summaries. Transport stays behind Sink; the
// shipped sink writes to the log.
package notify

import (
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Sink receives structured notices.
type Sink interface {
	Notify(notice schema.Notice)
}

// LogSink writes notices to the process log.
type LogSink struct{}

// Notify implements Sink.
func (LogSink) Notify(notice schema.Notice) {
	switch notice.Kind {
	case schema.NoticeGuardLocked:
		logs.Warnf("notice: %s", notice.Text)
	default:
		logs.Infof("notice: %s", notice.Text)
	}
}

// Notifier fans notices out to every sink and hands a copy to the optional
// record hook for journaling.
type Notifier struct {
	sinks  []Sink
	record func(schema.Notice)
}

// NewNotifier creates a notifier over the given sinks. A nil record hook
// disables journaling.
func NewNotifier(record func(schema.Notice), sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks, record: record}
}

func (n *Notifier) publish(notice schema.Notice) {
	if n == nil {
		return
	}
	if notice.Ts == 0 {
		notice.Ts = time.Now().UTC().UnixNano()
	}
	if n.record != nil {
		n.record(notice)
	}
	for _, sink := range n.sinks {
		sink.Notify(notice)
	}
}

// TradeExecuted reports a settled order with its realized P&L delta.
func (n *Notifier) TradeExecuted(id schema.InstrumentID, symbol string, side schema.OrderSide, qty schema.Quantity, price schema.Price, realized float64) {
	n.publish(schema.Notice{
		Kind:         schema.NoticeTradeExecuted,
		InstrumentID: id,
		Amount:       realized,
		Text:         fmt.Sprintf("%s %d %s at %.2f, realized %.2f", side, int64(qty), symbol, float64(price), realized),
	})
}

// GuardLocked reports the daily guard latching trading shut.
func (n *Notifier) GuardLocked(reason string, dailyPnL float64) {
	n.publish(schema.Notice{
		Kind:   schema.NoticeGuardLocked,
		Amount: dailyPnL,
		Text:   fmt.Sprintf("trading locked: %s", reason),
	})
}

// DailySummary reports end-of-session totals.
func (n *Notifier) DailySummary(trades uint64, realized float64, equity float64, locked bool) {
	n.publish(schema.Notice{
		Kind:   schema.NoticeDailySummary,
		Amount: realized,
		Text:   fmt.Sprintf("session done: trades %d realized %.2f equity %.2f locked %t", trades, realized, equity, locked),
	})
}
