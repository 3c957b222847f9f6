// Package ledger tracks every submitted order through its fill lifecycle.
//
// OnFill is the single mutation entry point for broker notifications and is
// idempotent per order: events for orders already in a terminal state are
// ignored, and executions reconcile cumulatively against the remaining
// quantity the venue reports, so duplicated or reordered deliveries cannot
// double-book. The executed callback fires exactly once per order, on the
// transition that settles its executed quantity.
package ledger

import (
	"errors"
	"sort"
	"sync"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder = errors.New("order already exists")
	ErrUnknownOrder   = errors.New("order not found")
	ErrInvalidFill    = errors.New("invalid fill quantity")
)

// Status tracks the lifecycle of an order.
type Status uint16

const (
	StatusUnknown Status = iota
	StatusSubmitted
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

// Terminal reports whether the status accepts no further fill events.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Order is the ledger's view of one submitted order. FilledPrice is the
// volume-weighted average over its fills.
type Order struct {
	ID              uint64
	ClientID        string
	InstrumentID    schema.InstrumentID
	Side            schema.OrderSide
	Qty             schema.Quantity
	Price           schema.Price
	Stop            schema.Price
	Target          schema.Price
	FilledQty       schema.Quantity
	FilledPrice     schema.Price
	Status          Status
	SubmitTs        int64
	FillTs          int64
	CancelRequested bool

	applied bool
}

// Ledger reconciles orders against asynchronous fill notifications.
type Ledger struct {
	mu         sync.Mutex
	orders     map[uint64]*Order
	onExecuted func(Order)
}

// NewLedger creates an empty ledger. onExecuted receives each order exactly
// once, when its executed quantity settles: on the transition to filled, or
// on a cancellation that still carries partial executions. nil disables the
// callback.
func NewLedger(onExecuted func(Order)) *Ledger {
	return &Ledger{
		orders:     make(map[uint64]*Order),
		onExecuted: onExecuted,
	}
}

// Submit registers a new order in submitted status.
func (l *Ledger) Submit(intent schema.OrderIntent) error {
	if intent.OrderID == 0 || intent.Qty <= 0 {
		return ErrInvalidFill
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.orders[intent.OrderID]; ok {
		return ErrDuplicateOrder
	}
	l.orders[intent.OrderID] = &Order{
		ID:           intent.OrderID,
		ClientID:     intent.ClientID,
		InstrumentID: intent.InstrumentID,
		Side:         intent.Side,
		Qty:          intent.Qty,
		Price:        intent.Price,
		Stop:         intent.Stop,
		Target:       intent.Target,
		Status:       StatusSubmitted,
		SubmitTs:     intent.Ts,
	}
	return nil
}

// OnFill folds one broker notification into its order. applied is false
// when the event was ignored: unknown orders error, events for terminal
// orders are dropped silently, over-fills error without mutating.
func (l *Ledger) OnFill(fill schema.Fill) (applied bool, err error) {
	l.mu.Lock()

	o, ok := l.orders[fill.OrderID]
	if !ok {
		l.mu.Unlock()
		return false, ErrUnknownOrder
	}
	if o.Status.Terminal() {
		l.mu.Unlock()
		return false, nil
	}

	switch fill.Status {
	case schema.FillStatusCancelled:
		o.Status = StatusCancelled
		o.FillTs = fill.Ts
		l.finish(o)
		return true, nil
	case schema.FillStatusRejected:
		o.Status = StatusRejected
		o.FillTs = fill.Ts
		l.mu.Unlock()
		return true, nil
	}

	executed := o.Qty - fill.Remaining
	if fill.Qty <= 0 || executed <= 0 || executed > o.Qty || fill.Qty > o.Qty-o.FilledQty {
		l.mu.Unlock()
		return false, ErrInvalidFill
	}

	// Reconcile against the cumulative executed quantity the venue reports
	// (order quantity minus remaining). A redelivered execution advances
	// nothing and drops out as a no-op instead of double-booking.
	delta := executed - o.FilledQty
	if delta <= 0 {
		l.mu.Unlock()
		return false, nil
	}

	total := o.FilledQty + delta
	o.FilledPrice = schema.Price(
		(float64(o.FilledPrice)*float64(o.FilledQty) + float64(fill.Price)*float64(delta)) / float64(total))
	o.FilledQty = total
	o.FillTs = fill.Ts

	if o.FilledQty == o.Qty {
		o.Status = StatusFilled
		l.finish(o)
		return true, nil
	}
	o.Status = StatusPartiallyFilled
	l.mu.Unlock()
	return true, nil
}

// Cancel marks a cancellation request; the order stays live until the
// broker confirms with a cancelled notification. The ledger never retries
// or auto-cancels on its own.
func (l *Ledger) Cancel(orderID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	if !o.Status.Terminal() {
		o.CancelRequested = true
	}
	return nil
}

// Order returns a copy of the order.
func (l *Ledger) Order(id uint64) (Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Pending lists orders still in submitted status with no fill activity,
// submitted at or before the given timestamp, oldest first. Timeout policy
// belongs to the caller.
func (l *Ledger) Pending(olderThan int64) []Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Order
	for _, o := range l.orders {
		if o.Status == StatusSubmitted && o.SubmitTs <= olderThan {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmitTs < out[j].SubmitTs })
	return out
}

// Orders returns a copy of every order, ordered by ID. Session audit.
func (l *Ledger) Orders() []Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Order, 0, len(l.orders))
	for _, o := range l.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// finish releases l.mu, then fires the executed callback at most once per
// order. The callback runs outside the lock so it may call back into the
// ledger. Callers hold l.mu and must not touch o afterwards.
func (l *Ledger) finish(o *Order) {
	fire := !o.applied && o.FilledQty > 0 && l.onExecuted != nil
	if fire {
		o.applied = true
	}
	executed := *o
	l.mu.Unlock()
	if fire {
		l.onExecuted(executed)
	}
}
