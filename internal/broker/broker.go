// Package broker turns approved order intents into broker notifications.
// Submissions fan out over a bounded worker pool; every outcome, fills and
// failures alike, lands in the fill queue so the ledger stays the single
// reconciliation point.
package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
	"main/pkg/exception"
)

// Delegator submits one intent to the execution venue and reports the
// resulting fill notifications.
type Delegator interface {
	Send(ctx context.Context, intent schema.OrderIntent) ([]schema.Fill, error)
}

// Config sizes the worker pool.
type Config struct {
	Workers       int           `json:"workers"`
	QueueSize     int           `json:"queueSize"`
	SubmitTimeout time.Duration `json:"submitTimeout"`
}

const (
	defaultWorkers       = 2
	defaultQueueSize     = 256
	defaultSubmitTimeout = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = defaultSubmitTimeout
	}
	return c
}

// Broker owns the submission queue and the delegator workers.
type Broker struct {
	cfg       Config
	delegator Delegator
	fills     *bus.FillQueue

	running atomic.Bool
	closed  atomic.Bool
	wg      sync.WaitGroup
	queue   chan schema.OrderIntent
}

// NewBroker wires a delegator to the fill queue.
func NewBroker(cfg Config, delegator Delegator, fills *bus.FillQueue) (*Broker, error) {
	cfg = cfg.withDefaults()
	if delegator == nil {
		return nil, exception.ErrOrderNilDelegator
	}
	if fills == nil {
		return nil, exception.ErrNilInstance
	}
	if cfg.Workers < 0 || cfg.QueueSize < 0 || cfg.SubmitTimeout < 0 {
		return nil, exception.ErrOrderInvalidWorkerConfig
	}
	return &Broker{
		cfg:       cfg,
		delegator: delegator,
		fills:     fills,
		queue:     make(chan schema.OrderIntent, cfg.QueueSize),
	}, nil
}

// Submit enqueues an intent without blocking. Intents without a client
// order ID get one stamped here, so every venue request is traceable.
func (b *Broker) Submit(intent schema.OrderIntent) error {
	if intent.OrderID == 0 || intent.Qty <= 0 || intent.Price <= 0 {
		return exception.ErrOrderInvalidRequest
	}
	if b.closed.Load() {
		return exception.ErrOrderClosed
	}
	if intent.ClientID == "" {
		intent.ClientID = uuid.NewString()
	}
	select {
	case b.queue <- intent:
		return nil
	default:
		return exception.ErrOrderQueueFull
	}
}

// Len reports queued submissions not yet picked up by a worker.
func (b *Broker) Len() int {
	return len(b.queue)
}

// Run starts the worker pool. Safe to call once; later calls no-op.
func (b *Broker) Run(ctx context.Context) {
	if b.running.Swap(true) {
		return
	}
	for range b.cfg.Workers {
		b.wg.Add(1)
		go b.worker(ctx)
	}
}

// Close stops the broker from accepting new intents. Workers keep running
// until the queue drains; use Wait to block on that.
func (b *Broker) Close() {
	if b.closed.Swap(true) {
		return
	}
	close(b.queue)
}

// Wait blocks until every worker has exited.
func (b *Broker) Wait() {
	b.wg.Wait()
}

func (b *Broker) worker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case intent, ok := <-b.queue:
			if !ok {
				return
			}
			b.execute(ctx, intent)
		case <-ctx.Done():
			return
		}
	}
}

// execute sends one intent with a per-request deadline. A failed or timed
// out submission becomes a rejection notification; there is no retry here,
// resubmission policy belongs to the caller.
func (b *Broker) execute(ctx context.Context, intent schema.OrderIntent) {
	sendCtx, cancel := context.WithTimeout(ctx, b.cfg.SubmitTimeout)
	results, err := b.delegator.Send(sendCtx, intent)
	cancel()

	if err != nil {
		if sendCtx.Err() == context.DeadlineExceeded {
			err = errors.Wrap(exception.ErrOrderSubmitTimeout, err.Error())
		}
		logs.Errorf("submit order %d, err: %+v", intent.OrderID, errors.Wrap(err, "delegator send"))
		results = []schema.Fill{{
			OrderID:      intent.OrderID,
			InstrumentID: intent.InstrumentID,
			Side:         intent.Side,
			Status:       schema.FillStatusRejected,
			Remaining:    intent.Qty,
			Ts:           time.Now().UTC().UnixNano(),
		}}
	}

	for _, fill := range results {
		if err := b.fills.Publish(ctx, fill); err != nil {
			logs.Errorf("publish fill for order %d, err: %+v", fill.OrderID, err)
			return
		}
	}
}
