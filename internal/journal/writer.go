package journal

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/schema"
)

var (
	ErrQueueFull       = errors.New("journal queue full")
	ErrClosed          = errors.New("journal writer closed")
	ErrNotStarted      = errors.New("journal writer not started")
	ErrAlreadyStarted  = errors.New("journal writer already started")
	ErrPayloadTooLarge = errors.New("journal payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

// Writer appends event frames to journal segments. Appends go through a
// bounded queue; a single goroutine owns the open segment, rotation, and
// flush/sync pacing. The queue never blocks the caller.
type Writer struct {
	cfg Config
	ch  chan appendRequest
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32
}

type appendRequest struct {
	header  schema.EventHeader
	payload []byte
}

// NewWriter creates a journal writer and ensures the directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan appendRequest, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer and flushes buffered frames.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error the writer loop observed, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// TryAppend enqueues one event without blocking.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	if w.cfg.CopyPayload && len(payload) > 0 {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		payload = cp
	}

	select {
	case w.ch <- appendRequest{header: header, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	loop := &writeLoop{
		cfg:       w.cfg,
		headerBuf: make([]byte, frameHeaderSize),
	}

	var flushC, syncC <-chan time.Time
	if w.cfg.FlushInterval > 0 {
		t := time.NewTicker(w.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if w.cfg.SyncInterval > 0 {
		t := time.NewTicker(w.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}

	defer func() {
		if err := loop.closeSegment(); err != nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drain(loop)
			return
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := loop.writeFrame(req); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if err := loop.flush(); err != nil {
				w.setErr(err)
				return
			}
		case <-syncC:
			if err := loop.sync(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

// drain empties whatever is already queued, without waiting for more.
func (w *Writer) drain(loop *writeLoop) {
	for {
		select {
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := loop.writeFrame(req); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	if w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}

// writeLoop holds the state owned by the writer goroutine.
type writeLoop struct {
	cfg       Config
	headerBuf []byte
	crcBuf    [frameChecksumSize]byte

	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
	segSeq   uint64
}

func (l *writeLoop) writeFrame(req appendRequest) error {
	if uint64(len(req.payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}

	now := time.Now().UTC()
	frameSize := int64(frameHeaderSize + len(req.payload) + frameChecksumSize)
	if l.shouldRotate(now, frameSize) {
		if err := l.closeSegment(); err != nil {
			return err
		}
		if err := l.openSegment(now); err != nil {
			return err
		}
	}

	encodeFrameHeader(l.headerBuf, req.header, len(req.payload))
	binary.LittleEndian.PutUint32(l.crcBuf[:], frameChecksum(l.headerBuf, req.payload))

	if _, err := l.buf.Write(l.headerBuf); err != nil {
		return err
	}
	if len(req.payload) > 0 {
		if _, err := l.buf.Write(req.payload); err != nil {
			return err
		}
	}
	if _, err := l.buf.Write(l.crcBuf[:]); err != nil {
		return err
	}

	l.size += frameSize
	return nil
}

func (l *writeLoop) shouldRotate(now time.Time, nextSize int64) bool {
	if l.file == nil {
		return true
	}
	if l.cfg.SegmentMaxBytes > 0 && l.size+nextSize > l.cfg.SegmentMaxBytes {
		return true
	}
	if l.cfg.SegmentMaxDuration > 0 && now.Sub(l.openedAt) >= l.cfg.SegmentMaxDuration {
		return true
	}
	return false
}

func (l *writeLoop) openSegment(now time.Time) error {
	ts := now.Format("20060102-150405")
	for {
		l.segSeq++
		name := fmt.Sprintf("%s-%s-%06d.wal", l.cfg.FilePrefix, ts, l.segSeq)
		file, err := os.OpenFile(filepath.Join(l.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return err
		}
		l.file = file
		l.buf = bufio.NewWriterSize(file, l.cfg.BufferSize)
		l.size = 0
		l.openedAt = now
		return nil
	}
}

func (l *writeLoop) flush() error {
	if l.file == nil {
		return nil
	}
	return l.buf.Flush()
}

func (l *writeLoop) sync() error {
	if l.file == nil {
		return nil
	}
	if err := l.buf.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

func (l *writeLoop) closeSegment() error {
	if l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil
	if err := l.buf.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
