package store

import (
	"context"
	"sync"
	"time"

	"github.com/latticehabits/lattice/backend/internal/habits"
	"go.uber.org/zap"
)

// ReorderFailure reports a fire-and-forget reorder that did not land.
type ReorderFailure struct {
	DeviceID   habits.DeviceID
	OrderedIDs []habits.SlotID
	Err        error
	At         time.Time
}

// ReorderDispatcher runs slot reorder commands without making the caller
// wait. The issuing request returns immediately; failures are published to
// subscribers so they stay observable for diagnostics instead of being
// swallowed.
type ReorderDispatcher struct {
	mu          sync.RWMutex
	adapter     habits.Adapter
	logger      *zap.Logger
	subscribers map[int64]*reorderSubscriber
	nextID      int64
	bufferSize  int
	pending     sync.WaitGroup
}

type reorderSubscriber struct {
	id     int64
	stream chan ReorderFailure
}

// NewReorderDispatcher constructs the dispatcher.
func NewReorderDispatcher(adapter habits.Adapter, logger *zap.Logger) *ReorderDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReorderDispatcher{
		adapter:     adapter,
		logger:      logger,
		subscribers: make(map[int64]*reorderSubscriber),
		bufferSize:  16,
	}
}

// Enqueue issues the reorder asynchronously and returns at once. The context
// is detached from the issuing request so an already-completed request does
// not cancel the write.
func (d *ReorderDispatcher) Enqueue(deviceID habits.DeviceID, orderedIDs []habits.SlotID) {
	ids := make([]habits.SlotID, len(orderedIDs))
	copy(ids, orderedIDs)

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		if err := d.adapter.ReorderSlots(context.Background(), deviceID, ids); err != nil {
			d.logger.Warn("slot reorder failed",
				zap.String("device_id", deviceID.String()),
				zap.Error(err))
			d.publish(ReorderFailure{
				DeviceID:   deviceID,
				OrderedIDs: ids,
				Err:        err,
				At:         time.Now(),
			})
		}
	}()
}

// Wait blocks until every enqueued reorder has finished. Used in tests and
// during shutdown.
func (d *ReorderDispatcher) Wait() {
	d.pending.Wait()
}

// Subscribe registers a failure listener. The returned cancel function
// detaches it; cancellation of the context does the same.
func (d *ReorderDispatcher) Subscribe(ctx context.Context) (<-chan ReorderFailure, func()) {
	subscriber := &reorderSubscriber{
		id:     d.nextSequence(),
		stream: make(chan ReorderFailure, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	cleanup := func() {
		d.unregisterSubscriber(subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *ReorderDispatcher) publish(failure ReorderFailure) {
	d.mu.RLock()
	copies := make([]*reorderSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- failure:
		default:
		}
	}
}

func (d *ReorderDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *ReorderDispatcher) registerSubscriber(subscriber *reorderSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *ReorderDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
