package ledger

import (
	"testing"

	"main/internal/schema"
)

func intent(id uint64, qty schema.Quantity) schema.OrderIntent {
	return schema.OrderIntent{
		OrderID:      id,
		InstrumentID: 7,
		Side:         schema.OrderSideBuy,
		Qty:          qty,
		Price:        100,
		Stop:         95,
		Target:       110,
		Ts:           1000,
		ClientID:     "c-1",
	}
}

func fillEvent(id uint64, qty, remaining schema.Quantity, price schema.Price, ts int64) schema.Fill {
	status := schema.FillStatusPartial
	if remaining == 0 {
		status = schema.FillStatusFilled
	}
	return schema.Fill{
		OrderID:      id,
		InstrumentID: 7,
		Side:         schema.OrderSideBuy,
		Status:       status,
		Qty:          qty,
		Price:        price,
		Remaining:    remaining,
		Ts:           ts,
	}
}

func TestFullFillSettlesOnce(t *testing.T) {
	var executed []Order
	l := NewLedger(func(o Order) { executed = append(executed, o) })

	if err := l.Submit(intent(1, 10)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	applied, err := l.OnFill(fillEvent(1, 10, 0, 101.5, 2000))
	if !applied || err != nil {
		t.Fatalf("fill: applied=%v err=%v", applied, err)
	}

	o, ok := l.Order(1)
	if !ok {
		t.Fatal("order missing")
	}
	if o.Status != StatusFilled {
		t.Fatalf("status mismatch: got %v want %v", o.Status, StatusFilled)
	}
	if o.FilledQty != 10 || o.FilledPrice != 101.5 {
		t.Fatalf("fill mismatch: got qty=%d price=%v", o.FilledQty, o.FilledPrice)
	}
	if o.FillTs != 2000 {
		t.Fatalf("fill ts mismatch: got %d want 2000", o.FillTs)
	}
	if len(executed) != 1 || executed[0].ID != 1 {
		t.Fatalf("executed callback mismatch: %+v", executed)
	}
}

func TestPartialFillsAccumulateToVWAP(t *testing.T) {
	var executed []Order
	l := NewLedger(func(o Order) { executed = append(executed, o) })

	if err := l.Submit(intent(1, 10)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := l.OnFill(fillEvent(1, 4, 6, 100, 2000)); err != nil {
		t.Fatalf("first fill: %v", err)
	}

	o, _ := l.Order(1)
	if o.Status != StatusPartiallyFilled {
		t.Fatalf("status mismatch: got %v want %v", o.Status, StatusPartiallyFilled)
	}
	if len(executed) != 0 {
		t.Fatalf("settled too early: %+v", executed)
	}

	if _, err := l.OnFill(fillEvent(1, 6, 0, 105, 2100)); err != nil {
		t.Fatalf("second fill: %v", err)
	}

	o, _ = l.Order(1)
	if o.Status != StatusFilled {
		t.Fatalf("status mismatch: got %v want %v", o.Status, StatusFilled)
	}
	// (4*100 + 6*105) / 10
	if o.FilledPrice != 103 {
		t.Fatalf("vwap mismatch: got %v want 103", o.FilledPrice)
	}
	if len(executed) != 1 || executed[0].FilledQty != 10 {
		t.Fatalf("executed callback mismatch: %+v", executed)
	}
}

func TestRedeliveredPartialFillIsNoOp(t *testing.T) {
	var executed []Order
	l := NewLedger(func(o Order) { executed = append(executed, o) })

	if err := l.Submit(intent(1, 10)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if applied, err := l.OnFill(fillEvent(1, 5, 5, 100, 2000)); !applied || err != nil {
		t.Fatalf("partial fill: applied=%v err=%v", applied, err)
	}

	// the venue redelivers the same execution for the still-live order
	applied, err := l.OnFill(fillEvent(1, 5, 5, 100, 2000))
	if applied || err != nil {
		t.Fatalf("redelivered partial: applied=%v err=%v", applied, err)
	}
	o, _ := l.Order(1)
	if o.FilledQty != 5 || o.Status != StatusPartiallyFilled {
		t.Fatalf("redelivery double-booked: qty=%d status=%v", o.FilledQty, o.Status)
	}
	if len(executed) != 0 {
		t.Fatalf("settled early on redelivery: %+v", executed)
	}

	if applied, err := l.OnFill(fillEvent(1, 5, 0, 100, 2100)); !applied || err != nil {
		t.Fatalf("completing fill: applied=%v err=%v", applied, err)
	}
	o, _ = l.Order(1)
	if o.FilledQty != 10 || o.Status != StatusFilled {
		t.Fatalf("order not settled on real shares: qty=%d status=%v", o.FilledQty, o.Status)
	}
	if len(executed) != 1 || executed[0].FilledQty != 10 {
		t.Fatalf("executed callback mismatch: %+v", executed)
	}
}

func TestDuplicateFillAfterTerminalIgnored(t *testing.T) {
	settled := 0
	l := NewLedger(func(Order) { settled++ })

	if err := l.Submit(intent(1, 5)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := l.OnFill(fillEvent(1, 5, 0, 100, 2000)); err != nil {
		t.Fatalf("fill: %v", err)
	}

	applied, err := l.OnFill(fillEvent(1, 5, 0, 100, 2000))
	if applied || err != nil {
		t.Fatalf("duplicate fill: applied=%v err=%v", applied, err)
	}

	o, _ := l.Order(1)
	if o.FilledQty != 5 {
		t.Fatalf("quantity mutated by duplicate: got %d want 5", o.FilledQty)
	}
	if settled != 1 {
		t.Fatalf("settled %d times, want 1", settled)
	}
}

func TestLateFillAfterCancelIgnored(t *testing.T) {
	settled := 0
	l := NewLedger(func(Order) { settled++ })

	if err := l.Submit(intent(1, 5)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := l.Cancel(1); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	cancel := fillEvent(1, 0, 0, 0, 2000)
	cancel.Status = schema.FillStatusCancelled
	if applied, err := l.OnFill(cancel); !applied || err != nil {
		t.Fatalf("cancel notification: applied=%v err=%v", applied, err)
	}

	applied, err := l.OnFill(fillEvent(1, 5, 0, 100, 2100))
	if applied || err != nil {
		t.Fatalf("late fill: applied=%v err=%v", applied, err)
	}

	o, _ := l.Order(1)
	if o.Status != StatusCancelled || o.FilledQty != 0 {
		t.Fatalf("terminal state regressed: %+v", o)
	}
	if settled != 0 {
		t.Fatalf("settled %d times on empty cancel, want 0", settled)
	}
}

func TestCancelWithPartialExecutionSettles(t *testing.T) {
	var executed []Order
	l := NewLedger(func(o Order) { executed = append(executed, o) })

	if err := l.Submit(intent(1, 10)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := l.OnFill(fillEvent(1, 3, 7, 100, 2000)); err != nil {
		t.Fatalf("partial fill: %v", err)
	}

	cancel := fillEvent(1, 0, 0, 0, 2100)
	cancel.Status = schema.FillStatusCancelled
	if _, err := l.OnFill(cancel); err != nil {
		t.Fatalf("cancel notification: %v", err)
	}

	if len(executed) != 1 {
		t.Fatalf("executed callback fired %d times, want 1", len(executed))
	}
	if executed[0].FilledQty != 3 || executed[0].Status != StatusCancelled {
		t.Fatalf("executed mismatch: %+v", executed[0])
	}
}

func TestOverfillRejectedWithoutMutation(t *testing.T) {
	l := NewLedger(nil)

	if err := l.Submit(intent(1, 5)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := l.OnFill(fillEvent(1, 3, 2, 100, 2000)); err != nil {
		t.Fatalf("partial fill: %v", err)
	}

	if _, err := l.OnFill(fillEvent(1, 4, 0, 100, 2100)); err != ErrInvalidFill {
		t.Fatalf("overfill error mismatch: got %v want %v", err, ErrInvalidFill)
	}
	if _, err := l.OnFill(fillEvent(1, 0, 2, 100, 2100)); err != ErrInvalidFill {
		t.Fatalf("zero fill error mismatch: got %v want %v", err, ErrInvalidFill)
	}

	o, _ := l.Order(1)
	if o.FilledQty != 3 || o.Status != StatusPartiallyFilled {
		t.Fatalf("order mutated by invalid fill: %+v", o)
	}
}

func TestRejectedIsTerminal(t *testing.T) {
	settled := 0
	l := NewLedger(func(Order) { settled++ })

	if err := l.Submit(intent(1, 5)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rejected := fillEvent(1, 0, 0, 0, 2000)
	rejected.Status = schema.FillStatusRejected
	if applied, err := l.OnFill(rejected); !applied || err != nil {
		t.Fatalf("reject notification: applied=%v err=%v", applied, err)
	}

	if applied, err := l.OnFill(fillEvent(1, 5, 0, 100, 2100)); applied || err != nil {
		t.Fatalf("fill after reject: applied=%v err=%v", applied, err)
	}
	if settled != 0 {
		t.Fatalf("settled %d times on reject, want 0", settled)
	}
}

func TestUnknownAndDuplicateOrders(t *testing.T) {
	l := NewLedger(nil)

	if _, err := l.OnFill(fillEvent(9, 1, 0, 100, 2000)); err != ErrUnknownOrder {
		t.Fatalf("unknown fill error mismatch: got %v want %v", err, ErrUnknownOrder)
	}
	if err := l.Cancel(9); err != ErrUnknownOrder {
		t.Fatalf("unknown cancel error mismatch: got %v want %v", err, ErrUnknownOrder)
	}

	if err := l.Submit(intent(1, 5)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := l.Submit(intent(1, 5)); err != ErrDuplicateOrder {
		t.Fatalf("duplicate submit error mismatch: got %v want %v", err, ErrDuplicateOrder)
	}
	if err := l.Submit(schema.OrderIntent{OrderID: 0, Qty: 5}); err != ErrInvalidFill {
		t.Fatalf("zero id error mismatch: got %v want %v", err, ErrInvalidFill)
	}
}

func TestPendingListsStalledSubmits(t *testing.T) {
	l := NewLedger(nil)

	for _, tc := range []struct {
		id uint64
		ts int64
	}{{1, 30}, {2, 10}, {3, 20}, {4, 40}} {
		in := intent(tc.id, 5)
		in.Ts = tc.ts
		if err := l.Submit(in); err != nil {
			t.Fatalf("submit %d: %v", tc.id, err)
		}
	}
	if _, err := l.OnFill(fillEvent(3, 5, 0, 100, 2000)); err != nil {
		t.Fatalf("fill: %v", err)
	}

	pending := l.Pending(30)
	if len(pending) != 2 {
		t.Fatalf("pending count mismatch: got %d want 2", len(pending))
	}
	if pending[0].ID != 2 || pending[1].ID != 1 {
		t.Fatalf("pending order mismatch: got %d,%d want 2,1", pending[0].ID, pending[1].ID)
	}
}
