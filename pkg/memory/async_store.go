package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
)

const (
	defaultAsyncQueueSize = 256
	asyncPublishTimeout   = 100 * time.Millisecond
	asyncWriteTimeout     = 5 * time.Second
)

// AsyncStore moves long-term writes off the pipeline onto a single worker.
// When the queue stays full past the publish timeout the write is dropped
// and counted. Close drains queued writes before closing the inner store.
type AsyncStore struct {
	inner   LongTermStore
	metrics *Metrics
	queue   chan *Message
	dropped atomic.Uint64

	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func NewAsyncStore(inner LongTermStore, queueSize int, metrics *Metrics) *AsyncStore {
	if queueSize <= 0 {
		queueSize = defaultAsyncQueueSize
	}
	s := &AsyncStore{
		inner:   inner,
		metrics: metrics,
		queue:   make(chan *Message, queueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *AsyncStore) StoreMessage(_ context.Context, msg *Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	select {
	case s.queue <- msg:
		return nil
	default:
	}
	timer := time.NewTimer(asyncPublishTimeout)
	defer timer.Stop()
	select {
	case s.queue <- msg:
		return nil
	case <-timer.C:
		s.dropped.Add(1)
		s.metrics.writeDropped()
		return ErrQueueFull
	}
}

func (s *AsyncStore) run() {
	defer s.wg.Done()
	for msg := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		err := s.inner.StoreMessage(ctx, msg)
		cancel()
		if err != nil {
			s.metrics.persistenceFailed()
			logger.WarnCF("memory", "Async long-term write failed", map[string]interface{}{
				"message_id": msg.ID,
				"error":      err.Error(),
			})
		}
	}
}

// Dropped reports how many writes were discarded because the queue was full.
func (s *AsyncStore) Dropped() uint64 {
	return s.dropped.Load()
}

// Unwrap exposes the wrapped store for capability lookups.
func (s *AsyncStore) Unwrap() LongTermStore { return s.inner }

func (s *AsyncStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()

		s.wg.Wait()
		s.closeErr = s.inner.Close()
	})
	return s.closeErr
}
