package obs

import (
	"strings"
	"testing"
	"time"
)

func TestMemoryReporterLineLists(t *testing.T) {
	var m MemoryReporter
	m.Sample()
	time.Sleep(time.Millisecond)
	m.Sample()

	line := string(m.appendLine(nil))
	for _, field := range []string{"mem: alloc=", " inuse=", " objects=", " alloc_rate=", " gc=", " pause=", " gc_cpu="} {
		if !strings.Contains(line, field) {
			t.Fatalf("line missing %q: %s", field, line)
		}
	}
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("line not newline terminated: %q", line)
	}
}

func TestMemoryReporterSampleRotates(t *testing.T) {
	var m MemoryReporter
	m.Sample()
	time.Sleep(time.Millisecond)
	m.Sample()

	if !m.currAt.After(m.prevAt) {
		t.Fatalf("sample did not rotate: prev=%v curr=%v", m.prevAt, m.currAt)
	}
	if m.curr.HeapAlloc == 0 {
		t.Fatal("expected a heap reading")
	}
}

func TestAppendBytesCarries(t *testing.T) {
	tests := []struct {
		name string
		in   uint64
		want string
	}{
		{"bytes", 512, "512B"},
		{"kilobytes", 40_000, "39KB"},
		{"megabytes", 1 << 25, "32MB"},
		{"stops at gigabytes", 1 << 45, "32768GB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(appendBytes(nil, tt.in)); got != tt.want {
				t.Fatalf("mismatch: got %s want %s", got, tt.want)
			}
		})
	}
}

func TestAppendBytesRate(t *testing.T) {
	if got := string(appendBytesRate(nil, 2048)); got != "2048.00B/s" {
		t.Fatalf("mismatch: got %s want 2048.00B/s", got)
	}
	if got := string(appendBytesRate(nil, 1<<20)); got != "1024.00KB/s" {
		t.Fatalf("mismatch: got %s want 1024.00KB/s", got)
	}
}
