package schema

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 1

// EventType defines the category of an event stored in the session journal.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventTick
	EventBar
	EventSignal
	EventRiskDecision
	EventOrderIntent
	EventFill
	EventNotice
)

// String returns the lowercase name of the event type.
func (t EventType) String() string {
	switch t {
	case EventTick:
		return "tick"
	case EventBar:
		return "bar"
	case EventSignal:
		return "signal"
	case EventRiskDecision:
		return "risk_decision"
	case EventOrderIntent:
		return "order_intent"
	case EventFill:
		return "fill"
	case EventNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// EventHeader is the common metadata attached to every journaled event.
// InstrumentID lets replay and fault tooling route by instrument without
// decoding the payload; instrument-less events carry zero.
type EventHeader struct {
	Type         EventType
	Version      uint16
	Source       uint16
	Flags        uint16
	InstrumentID InstrumentID
	Seq          uint64
	TsEvent      int64
	TsRecv       int64
	TraceID      uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, source uint16, instrument InstrumentID, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:         eventType,
		Version:      SchemaVersion,
		Source:       source,
		InstrumentID: instrument,
		Seq:          seq,
		TsEvent:      tsEvent,
		TsRecv:       tsRecv,
	}
}
