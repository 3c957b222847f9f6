package obs

import (
	"sync/atomic"
	"time"
)

// FlowIDs mints the identifiers that thread one order flow, signal to
// intent to fills, through journal frames and log lines. The IDs double as
// ledger order IDs, so every order names its flow.
type FlowIDs struct {
	last uint64
}

// NewFlowIDs seeds the minter. A zero seed falls back to the session start
// time, keeping IDs from colliding across restarts of an unjournaled run.
func NewFlowIDs(seed uint64) *FlowIDs {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	return &FlowIDs{last: seed}
}

// Next mints the next flow ID. IDs are strictly increasing within a
// session.
func (f *FlowIDs) Next() uint64 {
	if f == nil {
		return 0
	}
	return atomic.AddUint64(&f.last, 1)
}
