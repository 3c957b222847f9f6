package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"main/internal/bus"
	"main/internal/schema"
	"main/pkg/exception"
)

func testIntent(id uint64, qty schema.Quantity) schema.OrderIntent {
	return schema.OrderIntent{
		OrderID:      id,
		InstrumentID: 7,
		Side:         schema.OrderSideBuy,
		Qty:          qty,
		Price:        100,
		Ts:           1000,
	}
}

func collectFills(t *testing.T, fills *bus.FillQueue, want int) []schema.Fill {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan schema.Fill, want)
	go fills.Run(ctx, func(fill schema.Fill) { got <- fill })

	out := make([]schema.Fill, 0, want)
	for len(out) < want {
		select {
		case fill := <-got:
			out = append(out, fill)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d fills", len(out), want)
		}
	}
	return out
}

func TestPaperDelegatorWholeFill(t *testing.T) {
	d := NewPaperDelegator(PaperConfig{})

	fills, err := d.Send(context.Background(), testIntent(1, 10))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("fill count mismatch: got %d want 1", len(fills))
	}
	fill := fills[0]
	if fill.Status != schema.FillStatusFilled || fill.Qty != 10 || fill.Price != 100 || fill.Remaining != 0 {
		t.Fatalf("fill mismatch: %+v", fill)
	}
}

func TestPaperDelegatorTwoPartFills(t *testing.T) {
	d := NewPaperDelegator(PaperConfig{TwoPartFills: true})

	fills, err := d.Send(context.Background(), testIntent(1, 5))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("fill count mismatch: got %d want 2", len(fills))
	}
	if fills[0].Status != schema.FillStatusPartial || fills[0].Qty != 2 || fills[0].Remaining != 3 {
		t.Fatalf("partial mismatch: %+v", fills[0])
	}
	if fills[1].Status != schema.FillStatusFilled || fills[1].Qty != 3 || fills[1].Remaining != 0 {
		t.Fatalf("completion mismatch: %+v", fills[1])
	}
	if fills[0].Qty+fills[1].Qty != 5 {
		t.Fatalf("quantity not conserved: %+v", fills)
	}

	single, err := d.Send(context.Background(), testIntent(2, 1))
	if err != nil {
		t.Fatalf("send single share: %v", err)
	}
	if len(single) != 1 || single[0].Status != schema.FillStatusFilled {
		t.Fatalf("single-share order should fill whole: %+v", single)
	}
}

func TestPaperDelegatorRejectsInvalidIntent(t *testing.T) {
	d := NewPaperDelegator(PaperConfig{})
	if _, err := d.Send(context.Background(), testIntent(0, 10)); err != exception.ErrOrderInvalidRequest {
		t.Fatalf("zero order id error mismatch: got %v", err)
	}
	if _, err := d.Send(context.Background(), testIntent(1, 0)); err != exception.ErrOrderInvalidRequest {
		t.Fatalf("zero qty error mismatch: got %v", err)
	}
}

func TestBrokerPumpsFillsIntoQueue(t *testing.T) {
	fills := bus.NewFillQueue(16)
	b, err := NewBroker(Config{Workers: 2}, NewPaperDelegator(PaperConfig{}), fills)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Run(ctx)
	b.Run(ctx) // second call no-ops

	if err := b.Submit(testIntent(1, 10)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	got := collectFills(t, fills, 1)
	if got[0].OrderID != 1 || got[0].Status != schema.FillStatusFilled || got[0].Qty != 10 {
		t.Fatalf("fill mismatch: %+v", got[0])
	}
}

type capturingDelegator struct {
	intents chan schema.OrderIntent
	err     error
}

func (d *capturingDelegator) Send(_ context.Context, intent schema.OrderIntent) ([]schema.Fill, error) {
	d.intents <- intent
	if d.err != nil {
		return nil, d.err
	}
	return []schema.Fill{{OrderID: intent.OrderID, InstrumentID: intent.InstrumentID, Side: intent.Side, Status: schema.FillStatusFilled, Qty: intent.Qty, Price: intent.Price}}, nil
}

func TestSubmitStampsClientID(t *testing.T) {
	fills := bus.NewFillQueue(16)
	d := &capturingDelegator{intents: make(chan schema.OrderIntent, 1)}
	b, err := NewBroker(Config{Workers: 1}, d, fills)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Run(ctx)

	if err := b.Submit(testIntent(1, 10)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case intent := <-d.intents:
		if intent.ClientID == "" {
			t.Fatal("client id not stamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delegator never received intent")
	}
	collectFills(t, fills, 1)
}

func TestFailedSubmissionBecomesRejection(t *testing.T) {
	fills := bus.NewFillQueue(16)
	d := &capturingDelegator{intents: make(chan schema.OrderIntent, 1), err: errors.New("venue unavailable")}
	b, err := NewBroker(Config{Workers: 1}, d, fills)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Run(ctx)

	if err := b.Submit(testIntent(9, 4)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	got := collectFills(t, fills, 1)
	if got[0].OrderID != 9 || got[0].Status != schema.FillStatusRejected || got[0].Remaining != 4 {
		t.Fatalf("rejection mismatch: %+v", got[0])
	}
}

func TestSubmitValidationAndBackpressure(t *testing.T) {
	fills := bus.NewFillQueue(16)
	b, err := NewBroker(Config{Workers: 1, QueueSize: 1}, NewPaperDelegator(PaperConfig{}), fills)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	// Workers not started, so the queue holds submissions.

	if err := b.Submit(testIntent(0, 10)); err != exception.ErrOrderInvalidRequest {
		t.Fatalf("invalid intent error mismatch: got %v", err)
	}
	if err := b.Submit(testIntent(1, 10)); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := b.Submit(testIntent(2, 10)); err != exception.ErrOrderQueueFull {
		t.Fatalf("queue full error mismatch: got %v", err)
	}
	if got := b.Len(); got != 1 {
		t.Fatalf("queue length mismatch: got %d want 1", got)
	}
}

func TestNewBrokerValidation(t *testing.T) {
	fills := bus.NewFillQueue(1)
	if _, err := NewBroker(Config{}, nil, fills); err != exception.ErrOrderNilDelegator {
		t.Fatalf("nil delegator error mismatch: got %v", err)
	}
	if _, err := NewBroker(Config{}, NewPaperDelegator(PaperConfig{}), nil); err != exception.ErrNilInstance {
		t.Fatalf("nil fill queue error mismatch: got %v", err)
	}
	if _, err := NewBroker(Config{Workers: -1}, NewPaperDelegator(PaperConfig{}), fills); err != exception.ErrOrderInvalidWorkerConfig {
		t.Fatalf("bad worker config error mismatch: got %v", err)
	}
}
