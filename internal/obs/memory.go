package obs

import (
	"context"
	"log"
	"runtime"
	"strconv"
	"time"
)

// MemoryReporter samples runtime.MemStats and writes one compact line per
// interval through the process log. The line is assembled in a reused
// buffer so reporting does not disturb the heap it measures.
type MemoryReporter struct {
	buf        [1024]byte
	prev, curr runtime.MemStats
	prevAt     time.Time
	currAt     time.Time
}

// Run samples and reports every interval until the context ends.
func (m *MemoryReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
			m.Report()
		}
	}
}

// Sample rotates the previous reading out and reads fresh stats.
func (m *MemoryReporter) Sample() {
	m.prev, m.curr = m.curr, m.prev
	m.prevAt = m.currAt
	m.currAt = time.Now()

	runtime.ReadMemStats(&m.curr)

	if m.prevAt.IsZero() {
		m.prevAt = m.currAt
	}
}

// Report writes the current heap and GC figures as one line.
func (m *MemoryReporter) Report() {
	_, _ = log.Writer().Write(m.appendLine(m.buf[:0]))
}

func (m *MemoryReporter) appendLine(line []byte) []byte {
	dt := m.currAt.Sub(m.prevAt).Seconds()
	if dt <= 0 {
		dt = 1
	}

	line = append(line, "mem: alloc="...)
	line = appendBytes(line, m.curr.HeapAlloc)

	line = append(line, " inuse="...)
	line = appendBytes(line, m.curr.HeapInuse)

	line = append(line, " objects="...)
	line = strconv.AppendUint(line, m.curr.HeapObjects, 10)

	line = append(line, " alloc_rate="...)
	line = appendBytesRate(line, float64(m.curr.TotalAlloc-m.prev.TotalAlloc)/dt)

	line = append(line, " gc="...)
	line = strconv.AppendUint(line, uint64(m.curr.NumGC-m.prev.NumGC), 10)

	line = append(line, " pause="...)
	pauseMs := float64(m.curr.PauseTotalNs-m.prev.PauseTotalNs) / 1e6
	line = strconv.AppendFloat(line, pauseMs, 'f', 4, 64)
	line = append(line, "ms"...)

	line = append(line, " gc_cpu="...)
	line = strconv.AppendFloat(line, m.curr.GCCPUFraction, 'f', 6, 64)

	return append(line, '\n')
}

// unitCarry keeps values readable: anything at or past 32768 of a unit
// carries into the next one.
const unitCarry = 1 << 15

var byteUnits = [4]string{"B", "KB", "MB", "GB"}

func appendBytes(line []byte, v uint64) []byte {
	i := 0
	for v >= unitCarry && i < len(byteUnits)-1 {
		v >>= 10
		i++
	}
	line = strconv.AppendUint(line, v, 10)
	return append(line, byteUnits[i]...)
}

func appendBytesRate(line []byte, v float64) []byte {
	i := 0
	for v >= unitCarry && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	line = strconv.AppendFloat(line, v, 'f', 2, 64)
	line = append(line, byteUnits[i]...)
	return append(line, "/s"...)
}
