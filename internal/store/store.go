// Package store persists the order-flow audit trail to Postgres. Rows go
// through a bounded queue and a single background writer, so the decision
// path never waits on the database. The journal stays the source of
// truth; rows here are best-effort and a full queue drops.
package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"main/internal/core"
	"main/internal/ledger"
	"main/internal/schema"
	"main/pkg/conn"
	"main/pkg/exception"
)

// Order is one gate-approved submission.
type Order struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	OrderID     uint64 `gorm:"uniqueIndex;not null"`
	ClientID    string `gorm:"index;not null"`
	Symbol      string `gorm:"index;not null"`
	Side        string `gorm:"not null"` // buy or sell
	Qty         int64  `gorm:"not null"`
	Price       float64
	Stop        float64
	Target      float64
	SubmittedAt time.Time
}

// Trade is one settled execution with its realized result. Buys settle
// with zero realized; sells carry the round-trip P&L.
type Trade struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	OrderID  uint64  `gorm:"index;not null"`
	Symbol   string  `gorm:"index;not null"`
	Side     string  `gorm:"not null"`
	Qty      int64   `gorm:"not null"`
	AvgPrice float64 `gorm:"not null"`
	Realized float64 `gorm:"column:realized_pnl"`
	Status   string  `gorm:"not null"` // filled or cancelled
	FilledAt time.Time
}

// Session is one end-of-day summary row.
type Session struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	Trades     int
	Realized   float64
	Equity     float64
	Locked     bool
	RiskAmount float64
	EndedAt    time.Time `gorm:"index"`
}

// Config sizes the async writer.
type Config struct {
	QueueSize int `json:"queueSize"`
}

const defaultQueueSize = 1024

// Store implements the pipeline audit hook over Postgres.
type Store struct {
	db  *gorm.DB
	reg *schema.Registry
	ch  chan any
	wg  sync.WaitGroup

	started uint32
	closed  uint32
	dropped uint64
}

// New creates a store writing through the given connection.
func New(client *conn.Client, registry *schema.Registry, cfg Config) (*Store, error) {
	if client == nil || client.DB() == nil {
		return nil, exception.ErrStoreNilClient
	}
	if registry == nil {
		return nil, exception.ErrNilInstance
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Store{
		db:  client.DB(),
		reg: registry,
		ch:  make(chan any, cfg.QueueSize),
	}, nil
}

// Start migrates the tables and runs the writer loop in a new goroutine.
func (s *Store) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		return exception.ErrStoreAlreadyStarted
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&Order{}, &Trade{}, &Session{}); err != nil {
		atomic.StoreUint32(&s.started, 0)
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
	return nil
}

// Close stops the writer after flushing queued rows. Callers stop the
// pipeline first; rows enqueued after Close are dropped.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		close(s.ch)
	}
	s.wg.Wait()
	return nil
}

// Dropped counts rows lost to a full queue.
func (s *Store) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return atomic.LoadUint64(&s.dropped)
}

// OrderSubmitted records a gate-approved intent.
func (s *Store) OrderSubmitted(intent schema.OrderIntent) {
	if s == nil {
		return
	}
	s.enqueue(&Order{
		OrderID:     intent.OrderID,
		ClientID:    intent.ClientID,
		Symbol:      s.reg.SymbolName(intent.InstrumentID),
		Side:        intent.Side.String(),
		Qty:         int64(intent.Qty),
		Price:       float64(intent.Price),
		Stop:        float64(intent.Stop),
		Target:      float64(intent.Target),
		SubmittedAt: time.Unix(0, intent.Ts).UTC(),
	})
}

// TradeExecuted records a settled order.
func (s *Store) TradeExecuted(o ledger.Order, realized float64) {
	if s == nil {
		return
	}
	s.enqueue(&Trade{
		OrderID:  o.ID,
		Symbol:   s.reg.SymbolName(o.InstrumentID),
		Side:     o.Side.String(),
		Qty:      int64(o.FilledQty),
		AvgPrice: float64(o.FilledPrice),
		Realized: realized,
		Status:   o.Status.String(),
		FilledAt: time.Unix(0, o.FillTs).UTC(),
	})
}

// SessionSummary records an end-of-day rollup.
func (s *Store) SessionSummary(sum core.SessionSummary) {
	if s == nil {
		return
	}
	s.enqueue(&Session{
		Trades:     sum.Trades,
		Realized:   sum.Realized,
		Equity:     sum.Equity,
		Locked:     sum.Locked,
		RiskAmount: sum.RiskAmount,
		EndedAt:    time.Unix(0, sum.Ts).UTC(),
	})
}

func (s *Store) enqueue(row any) {
	if atomic.LoadUint32(&s.closed) != 0 {
		atomic.AddUint64(&s.dropped, 1)
		return
	}
	select {
	case s.ch <- row:
	default:
		n := atomic.AddUint64(&s.dropped, 1)
		logs.Warnf("audit queue full, %d rows dropped", n)
	}
}

func (s *Store) run() {
	for row := range s.ch {
		if err := s.db.Create(row).Error; err != nil {
			logs.Errorf("audit insert failed, err: %+v", err)
		}
	}
}
