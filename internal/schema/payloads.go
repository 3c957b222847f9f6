package schema

// Price is a price level in the instrument's quote currency.
// Retail equity levels and the ratio math over them live comfortably in
// float64; exact decimal is used only at serialization boundaries.
type Price float64

// Quantity is a share count. Orders and positions are whole shares.
type Quantity int64

// Tick is the payload for EventTick: one trade print.
type Tick struct {
	InstrumentID InstrumentID
	Price        Price
	Volume       Quantity
	Ts           int64
}

// Bar is the payload for EventBar: one closed OHLCV bar.
// PeriodStart is the tick timestamp floored to the bar interval.
type Bar struct {
	InstrumentID InstrumentID
	PeriodStart  int64
	Open         Price
	High         Price
	Low          Price
	Close        Price
	Volume       Quantity
}

// SignalKind describes what a strategy wants done.
type SignalKind uint16

const (
	SignalHold SignalKind = iota
	SignalBuy
	SignalSell
)

// String returns the lowercase name of the signal kind.
func (k SignalKind) String() string {
	switch k {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	default:
		return "hold"
	}
}

// Signal is the payload for EventSignal: a strategy or aggregator verdict.
// Stop and Target are zero when the emitter has no opinion on them.
type Signal struct {
	Kind         SignalKind
	InstrumentID InstrumentID
	Confidence   float64
	Stop         Price
	Target       Price
	Ts           int64
	Strategy     string
	Reason       string
}

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// String returns the lowercase name of the side.
func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderIntent is the payload for EventOrderIntent: an order the gate
// approved and handed to the broker sink. ClientID is the idempotency key
// quoted back by the broker.
type OrderIntent struct {
	OrderID      uint64
	InstrumentID InstrumentID
	Side         OrderSide
	Qty          Quantity
	Price        Price
	Stop         Price
	Target       Price
	Ts           int64
	ClientID     string
}

// FillStatus describes the order state a fill notification reports.
type FillStatus uint16

const (
	FillStatusUnknown FillStatus = iota
	FillStatusPartial
	FillStatusFilled
	FillStatusCancelled
	FillStatusRejected
)

// String returns the lowercase name of the status.
func (s FillStatus) String() string {
	switch s {
	case FillStatusPartial:
		return "partial"
	case FillStatusFilled:
		return "filled"
	case FillStatusCancelled:
		return "cancelled"
	case FillStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Fill is the payload for EventFill: a broker execution or terminal notice.
// Remaining is the unfilled quantity after this event.
type Fill struct {
	OrderID      uint64
	InstrumentID InstrumentID
	Side         OrderSide
	Status       FillStatus
	Qty          Quantity
	Price        Price
	Remaining    Quantity
	Ts           int64
}

// RiskAction is the outcome of a risk decision.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
)

// RiskReason is a coarse reason code for risk decisions. Deny decisions
// carry the rule that fired; synthesized sell approvals carry their origin.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonGuardLocked
	RiskReasonMaxPositions
	RiskReasonCashReserve
	RiskReasonConcentration
	RiskReasonSizingZero
	RiskReasonNoPosition
	RiskReasonStopLoss
	RiskReasonTakeProfit
)

// String returns a short name for the reason code.
func (r RiskReason) String() string {
	switch r {
	case RiskReasonGuardLocked:
		return "guard_locked"
	case RiskReasonMaxPositions:
		return "max_positions"
	case RiskReasonCashReserve:
		return "cash_reserve"
	case RiskReasonConcentration:
		return "concentration"
	case RiskReasonSizingZero:
		return "sizing_zero"
	case RiskReasonNoPosition:
		return "no_position"
	case RiskReasonStopLoss:
		return "stop_loss"
	case RiskReasonTakeProfit:
		return "take_profit"
	default:
		return "none"
	}
}

// RiskDecision is the payload for EventRiskDecision. Detail is the
// human-readable rule text with the numbers that fired it.
type RiskDecision struct {
	OrderID      uint64
	InstrumentID InstrumentID
	Side         OrderSide
	Action       RiskAction
	Reason       RiskReason
	Qty          Quantity
	Price        Price
	Stop         Price
	Target       Price
	Ts           int64
	Detail       string
}

// NoticeKind categorizes operator-facing notifications.
type NoticeKind uint16

const (
	NoticeUnknown NoticeKind = iota
	NoticeTradeExecuted
	NoticeGuardLocked
	NoticeDailySummary
)

// Notice is the payload for EventNotice: a structured operator notification.
type Notice struct {
	Kind         NoticeKind
	InstrumentID InstrumentID
	Amount       float64
	Ts           int64
	Text         string
}
