// Package framestore implements the bounded, spill-to-disk FIFO that
// decouples the encoder pool from the paced player. It is grounded on
// hikariwave/audio/store.py's FrameStore, translated from Python's
// asyncio.Queue + asyncio.Event into Go's mutex/condition/channel
// idioms the way internal/queue drives its own worker loop with a
// mutex plus a buffered "wake up" channel.
package framestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hikariwave/hikariwave-go/internal/audiocodec"
)

// ErrClosed is returned by StoreFrame when called after EOS has already
// been written.
var ErrClosed = errors.New("frame store already received end-of-stream")

// signal is a broadcast-once latch analogous to hikari-wave's
// asyncio.Event, reimplemented over a channel so waiters can select on
// ctx.Done() alongside it.
type signal struct {
	mu sync.Mutex
	ch chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) wait(ctx context.Context) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *signal) broadcast() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

// Store is a FIFO of Opus packets with an optional disk spill-over for
// bounding memory use on long tracks.
type Store struct {
	logger *slog.Logger

	disk     bool
	duration int // seconds; 0 means spill sizing is disabled
	dir      string

	memoryLimit int
	lowMark     int
	highMark    int

	mu         sync.Mutex
	liveBuffer [][]byte // a nil entry is the EOS marker
	eosPending bool     // EOS has been logically reached and queued for delivery
	eosWritten bool
	eosEmitted bool
	refilling  bool

	chunkMu         sync.Mutex
	chunkBuffer     []byte
	chunkFrameCount int
	fileIndex       int
	diskQueue       []int

	event *signal
}

// Option customizes a Store at construction time.
type Option func(*Store)

// WithDir overrides the spill directory. Each Store must receive a
// private directory — multiple concurrent stores must never share one,
// since file_index collisions would corrupt the FIFO.
func WithDir(dir string) Option {
	return func(s *Store) { s.dir = dir }
}

// WithLogger attaches a logger; if omitted, a discard logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a frame store. disk enables spill-to-disk; duration sizes
// the in-memory window in seconds and is only meaningful when disk is
// true (memory_limit = duration * frames_per_second).
func New(disk bool, duration int, opts ...Option) *Store {
	s := &Store{
		disk:     disk,
		duration: duration,
		dir:      "wavecache",
		event:    newSignal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	if s.disk && s.duration > 0 {
		s.memoryLimit = s.duration * audiocodec.FramesPerSecond
	}
	s.lowMark = s.memoryLimit / 4
	s.highMark = s.memoryLimit

	if s.disk {
		_ = os.MkdirAll(s.dir, 0o755)
	}

	return s
}

// StoreFrame enqueues an Opus packet. Passing nil signals end-of-stream;
// once EOS has been written, StoreFrame must not be called again.
func (s *Store) StoreFrame(frame []byte) error {
	if frame == nil {
		return s.storeEOS()
	}

	if !s.disk {
		s.mu.Lock()
		if s.eosWritten {
			s.mu.Unlock()
			return ErrClosed
		}
		s.liveBuffer = append(s.liveBuffer, frame)
		s.mu.Unlock()
		s.event.broadcast()
		return nil
	}

	s.mu.Lock()
	if s.eosWritten {
		s.mu.Unlock()
		return ErrClosed
	}
	belowHigh := len(s.liveBuffer) < s.highMark
	if belowHigh {
		s.liveBuffer = append(s.liveBuffer, frame)
	}
	s.mu.Unlock()

	if belowHigh {
		s.event.broadcast()
		return nil
	}

	s.chunkMu.Lock()
	lengthPrefixed := make([]byte, 2+len(frame))
	lengthPrefixed[0] = byte(len(frame) >> 8)
	lengthPrefixed[1] = byte(len(frame))
	copy(lengthPrefixed[2:], frame)
	s.chunkBuffer = append(s.chunkBuffer, lengthPrefixed...)
	s.chunkFrameCount++

	rotate := s.chunkFrameCount >= s.memoryLimit
	if rotate {
		if err := s.flushChunkLocked(); err != nil {
			s.chunkMu.Unlock()
			return fmt.Errorf("framestore: flush chunk: %w", err)
		}
	}
	s.chunkMu.Unlock()

	if rotate {
		s.event.broadcast()
	}
	return nil
}

func (s *Store) storeEOS() error {
	s.mu.Lock()
	if s.eosWritten {
		s.mu.Unlock()
		return ErrClosed
	}
	s.eosWritten = true
	s.mu.Unlock()

	if !s.disk {
		s.mu.Lock()
		s.liveBuffer = append(s.liveBuffer, nil)
		s.mu.Unlock()
		s.event.broadcast()
		return nil
	}

	s.chunkMu.Lock()
	err := s.flushChunkLocked()
	s.chunkMu.Unlock()
	if err != nil {
		return fmt.Errorf("framestore: flush chunk on eos: %w", err)
	}

	s.mu.Lock()
	noChunksPending := len(s.diskQueue) == 0
	if noChunksPending {
		s.liveBuffer = append(s.liveBuffer, nil)
	}
	s.mu.Unlock()

	s.event.broadcast()
	return nil
}

// flushChunkLocked persists the pending chunk buffer to disk. Caller must
// hold chunkMu.
func (s *Store) flushChunkLocked() error {
	if len(s.chunkBuffer) == 0 {
		return nil
	}

	s.mu.Lock()
	s.fileIndex++
	index := s.fileIndex
	s.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("%d.wcf", index))
	if err := os.WriteFile(path, s.chunkBuffer, 0o644); err != nil {
		return err
	}

	s.mu.Lock()
	s.diskQueue = append(s.diskQueue, index)
	s.mu.Unlock()

	s.chunkBuffer = s.chunkBuffer[:0]
	s.chunkFrameCount = 0

	s.logger.Debug("framestore: rotated chunk to disk", "index", index)
	return nil
}

// FetchFrame returns the next packet in insertion order. It returns
// (nil, false, nil) exactly once after the last packet has been consumed
// and end-of-stream has propagated; subsequent calls continue to return
// (nil, false, nil) without blocking.
func (s *Store) FetchFrame(ctx context.Context) ([]byte, bool, error) {
	for {
		s.mu.Lock()
		if s.eosEmitted {
			s.mu.Unlock()
			return nil, false, nil
		}

		if len(s.liveBuffer) > 0 {
			frame := s.liveBuffer[0]
			s.liveBuffer = s.liveBuffer[1:]

			if frame == nil {
				s.eosEmitted = true
				s.mu.Unlock()
				return nil, false, nil
			}

			needsRefill := s.disk && len(s.liveBuffer) <= s.lowMark && len(s.diskQueue) > 0 && !s.refilling
			if needsRefill {
				s.refilling = true
			}
			s.mu.Unlock()

			if needsRefill {
				go s.refillChunk()
			}
			return frame, true, nil
		}
		s.mu.Unlock()

		if err := s.event.wait(ctx); err != nil {
			return nil, false, err
		}
	}
}

// refillChunk reads the oldest spilled chunk back into the live buffer,
// deletes the file, and yields periodically so it never starves
// consumers reading concurrently from the live buffer.
func (s *Store) refillChunk() {
	defer func() {
		s.mu.Lock()
		s.refilling = false
		s.mu.Unlock()
		s.event.broadcast()
	}()

	s.mu.Lock()
	if len(s.diskQueue) == 0 {
		s.mu.Unlock()
		return
	}
	index := s.diskQueue[0]
	s.diskQueue = s.diskQueue[1:]
	s.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("%d.wcf", index))
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("framestore: failed to read spilled chunk", "path", path, "error", err)
		return
	}

	var batch [][]byte
	offset := 0
	since := 0
	for offset+2 <= len(data) {
		length := int(data[offset])<<8 | int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			break
		}
		frame := make([]byte, length)
		copy(frame, data[offset:offset+length])
		offset += length
		batch = append(batch, frame)
		since++

		if since >= 100 {
			s.drainBatch(batch)
			batch = batch[:0]
			since = 0
		}
	}
	s.drainBatch(batch)

	if err := os.Remove(path); err != nil {
		s.logger.Warn("framestore: failed to remove consumed chunk", "path", path, "error", err)
	}

	s.mu.Lock()
	noMoreChunks := len(s.diskQueue) == 0
	eosDone := s.eosWritten && noMoreChunks
	if eosDone {
		s.liveBuffer = append(s.liveBuffer, nil)
	}
	s.mu.Unlock()
}

func (s *Store) drainBatch(batch [][]byte) {
	if len(batch) == 0 {
		return
	}
	s.mu.Lock()
	s.liveBuffer = append(s.liveBuffer, batch...)
	s.mu.Unlock()
	s.event.broadcast()
}

// Wait blocks until either a frame is available to fetch or end-of-stream
// has fully propagated (no more disk chunks pending).
func (s *Store) Wait(ctx context.Context) error {
	s.mu.Lock()
	ready := len(s.liveBuffer) > 0 || (s.eosWritten && len(s.diskQueue) == 0)
	s.mu.Unlock()
	if ready {
		return nil
	}
	return s.event.wait(ctx)
}
