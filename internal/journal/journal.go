// Package journal persists every pipeline event to a segmented append-only
// log. One frame per event: a fixed header, the codec payload, a CRC32-C
// checksum. The journal is the session audit trail and the recovery source
// for the portfolio book.
package journal

import (
	"context"
	"sync"
	"time"

	"main/internal/schema"
)

// Journal assigns sequence numbers and receive timestamps to live events
// and hands them to the writer. Tooling that replays or rewrites existing
// journals uses Writer directly to preserve recorded headers.
type Journal struct {
	w      *Writer
	mu     sync.Mutex
	seq    uint64
	source uint16
}

// New creates a journal over a fresh writer. source tags every header with
// the producing process.
func New(cfg Config, source uint16) (*Journal, error) {
	w, err := NewWriter(cfg)
	if err != nil {
		return nil, err
	}
	return &Journal{w: w, source: source}, nil
}

// Start launches the writer loop.
func (j *Journal) Start(ctx context.Context) error {
	return j.w.Start(ctx)
}

// Close flushes and closes the active segment.
func (j *Journal) Close() error {
	return j.w.Close()
}

// Record journals one event and returns the header it was written under.
// Sequence assignment and the append happen under one lock, so frames land
// on disk in sequence order even when goroutines race on Record. trace
// threads order-flow events together; zero means the event belongs to no
// flow.
func (j *Journal) Record(eventType schema.EventType, instrument schema.InstrumentID, trace uint64, tsEvent int64, payload []byte) (schema.EventHeader, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	header := schema.NewHeader(eventType, j.source, instrument, j.seq, tsEvent, time.Now().UTC().UnixNano())
	header.TraceID = trace
	return header, j.w.TryAppend(header, payload)
}

// LastSeq returns the most recently assigned sequence number.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// SetLastSeq seeds the sequence counter, so a recovered session continues
// numbering after the replayed tail instead of restarting from one.
func (j *Journal) SetLastSeq(seq uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq = seq
}

// Err surfaces the first writer error, if any.
func (j *Journal) Err() error {
	return j.w.Err()
}
