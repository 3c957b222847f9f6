package portfolio

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"main/internal/schema"
)

// Snapshot captures the book at a point in time, tagged with the last
// journal sequence folded into it.
type Snapshot struct {
	Timestamp   int64           `json:"timestamp"`
	LastSeq     uint64          `json:"lastSeq"`
	LastEventTs int64           `json:"lastEventTs"`
	InitialCash float64         `json:"initialCash"`
	Cash        float64         `json:"cash"`
	Realized    float64         `json:"realized"`
	Positions   []PositionEntry `json:"positions"`
}

// PositionEntry is one holding inside a snapshot.
type PositionEntry struct {
	InstrumentID schema.InstrumentID `json:"instrumentId"`
	Qty          schema.Quantity     `json:"qty"`
	AvgPrice     schema.Price        `json:"avgPrice"`
	LastPrice    schema.Price        `json:"lastPrice"`
	Stop         schema.Price        `json:"stop"`
	Target       schema.Price        `json:"target"`
	OpenTs       int64               `json:"openTs"`
}

// Snapshot builds a snapshot of the current book.
func (p *Portfolio) Snapshot() Snapshot {
	return p.SnapshotWithMeta(0, 0)
}

// SnapshotWithMeta builds a snapshot carrying journal replay metadata.
func (p *Portfolio) SnapshotWithMeta(lastSeq uint64, lastEventTs int64) Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]PositionEntry, 0, len(p.positions))
	for _, pos := range p.positions {
		entries = append(entries, PositionEntry{
			InstrumentID: pos.InstrumentID,
			Qty:          pos.Qty,
			AvgPrice:     pos.AvgPrice,
			LastPrice:    pos.LastPrice,
			Stop:         pos.Stop,
			Target:       pos.Target,
			OpenTs:       pos.OpenTs,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].InstrumentID < entries[j].InstrumentID
	})
	return Snapshot{
		Timestamp:   time.Now().UTC().UnixNano(),
		LastSeq:     lastSeq,
		LastEventTs: lastEventTs,
		InitialCash: p.initialCash,
		Cash:        p.cash,
		Realized:    p.realized,
		Positions:   entries,
	}
}

// ApplySnapshot replaces the book with the snapshot contents.
func (p *Portfolio) ApplySnapshot(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.initialCash = snap.InitialCash
	p.cash = snap.Cash
	p.realized = snap.Realized
	p.positions = make(map[schema.InstrumentID]*Position, len(snap.Positions))
	for _, entry := range snap.Positions {
		p.positions[entry.InstrumentID] = &Position{
			InstrumentID: entry.InstrumentID,
			Qty:          entry.Qty,
			AvgPrice:     entry.AvgPrice,
			LastPrice:    entry.LastPrice,
			Stop:         entry.Stop,
			Target:       entry.Target,
			OpenTs:       entry.OpenTs,
		}
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots describe the same book: cash,
// realized profit, and per-instrument quantity and average price. Price
// marks are session state, not book state, so they are not compared.
func CompareSnapshots(expected, actual Snapshot) error {
	if !moneyEqual(expected.Cash, actual.Cash) {
		return fmt.Errorf("snapshot cash mismatch: expected=%.6f actual=%.6f", expected.Cash, actual.Cash)
	}
	if !moneyEqual(expected.Realized, actual.Realized) {
		return fmt.Errorf("snapshot realized mismatch: expected=%.6f actual=%.6f", expected.Realized, actual.Realized)
	}
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedEntries := make(map[schema.InstrumentID]PositionEntry, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedEntries[entry.InstrumentID] = entry
	}
	for _, entry := range actual.Positions {
		want, ok := expectedEntries[entry.InstrumentID]
		if !ok {
			return fmt.Errorf("snapshot missing instrument: %d", entry.InstrumentID)
		}
		if want.Qty != entry.Qty {
			return fmt.Errorf("snapshot qty mismatch: instrument=%d expected=%d actual=%d", entry.InstrumentID, want.Qty, entry.Qty)
		}
		if !moneyEqual(float64(want.AvgPrice), float64(entry.AvgPrice)) {
			return fmt.Errorf("snapshot avg price mismatch: instrument=%d expected=%v actual=%v", entry.InstrumentID, want.AvgPrice, entry.AvgPrice)
		}
	}
	return nil
}

func moneyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
