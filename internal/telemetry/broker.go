package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/logger"
)

// Default buffer sizes and timings, matched to the crawler's SSE broker
// defaults.
const (
	DefaultEventBufferSize   = 1000
	DefaultClientBufferSize  = 100
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
)

// Filter decides whether a Snapshot should be delivered to a given
// subscriber, so a client watching one task id is not woken for every
// other tenant's updates.
type Filter func(snapshot domain.Snapshot) bool

// ForTask builds a Filter that only passes snapshots for taskID.
func ForTask(taskID string) Filter {
	return func(snapshot domain.Snapshot) bool {
		return snapshot.TaskID == taskID
	}
}

// Broker fans Snapshots published by any number of Task Controllers out to
// any number of subscribed streaming clients, each with its own optional
// Filter and a bounded per-client buffer; a client that falls behind is
// disconnected rather than blocking the publisher.
//
// Grounded on the crawler's infrastructure/sse Broker: a buffered publish
// channel drained by a single broadcast loop, per-client buffered channels,
// and slow-client eviction on a full buffer.
type Broker struct {
	logger logger.Interface

	mu      sync.RWMutex
	clients map[string]*subscriber

	publish chan domain.Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	eventBufferSize  int
	clientBufferSize int
}

type subscriber struct {
	id     string
	events chan domain.Snapshot
	filter Filter
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

var subscriberIDCounter atomic.Int64

// NewBroker builds a Broker. Start must be called before Publish has any
// effect.
func NewBroker(log logger.Interface) *Broker {
	return &Broker{
		logger:           log,
		clients:          make(map[string]*subscriber),
		eventBufferSize:  DefaultEventBufferSize,
		clientBufferSize: DefaultClientBufferSize,
	}
}

// Start launches the broadcast loop.
func (b *Broker) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.publish = make(chan domain.Snapshot, b.eventBufferSize)
	b.wg.Add(1)
	go b.broadcastLoop()
}

// Stop cancels the broadcast loop and waits up to DefaultShutdownTimeout for
// it to drain.
func (b *Broker) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(DefaultShutdownTimeout):
		b.logger.Warn("telemetry broker shutdown timeout exceeded")
	}
}

// Publish implements task.Publisher: every controller calls this on each
// lifecycle transition and periodic tick.
func (b *Broker) Publish(snapshot domain.Snapshot) {
	if b.publish == nil {
		return
	}
	select {
	case b.publish <- snapshot:
	default:
		b.logger.Warn("telemetry broker publish buffer full, dropping snapshot",
			logger.String("task_id", snapshot.TaskID))
	}
}

// Subscribe returns a channel of Snapshots matching filter (nil passes
// everything) and a cleanup function the caller must call when done
// reading, typically via defer.
func (b *Broker) Subscribe(ctx context.Context, filter Filter) (<-chan domain.Snapshot, func()) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscriber{
		id:     fmt.Sprintf("sub-%d", subscriberIDCounter.Add(1)),
		events: make(chan domain.Snapshot, b.clientBufferSize),
		filter: filter,
		ctx:    subCtx,
		cancel: cancel,
	}

	b.mu.Lock()
	b.clients[sub.id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		<-sub.ctx.Done()
		b.removeClient(sub.id)
	}()

	return sub.events, func() { b.removeClient(sub.id) }
}

// ClientCount returns the number of currently subscribed clients.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broker) broadcastLoop() {
	defer b.wg.Done()
	for {
		select {
		case snapshot := <-b.publish:
			b.broadcast(snapshot)
		case <-b.ctx.Done():
			b.disconnectAll()
			return
		}
	}
}

func (b *Broker) broadcast(snapshot domain.Snapshot) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.clients))
	for _, s := range b.clients {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil && !s.filter(snapshot) {
			continue
		}
		select {
		case s.events <- snapshot:
		default:
			b.logger.Warn("telemetry client buffer full, disconnecting", logger.String("client_id", s.id))
			b.removeClient(s.id)
		}
	}
}

func (b *Broker) removeClient(id string) {
	b.mu.Lock()
	s, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	b.mu.Unlock()

	if ok && !s.closed.Swap(true) {
		s.cancel()
		close(s.events)
	}
}

func (b *Broker) disconnectAll() {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.clients))
	for _, s := range b.clients {
		subs = append(subs, s)
	}
	b.clients = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		if !s.closed.Swap(true) {
			s.cancel()
			close(s.events)
		}
	}
}
