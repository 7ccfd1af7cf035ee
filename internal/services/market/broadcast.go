package market

import (
	"sync"

	"go.uber.org/zap"

	"github.com/paperhands/paperhands/internal/domain"
)

// subscriberBuffer bounds how many unread batches a slow subscriber may
// accumulate before the oldest one is dropped.
const subscriberBuffer = 16

// Subscription is one listener attached to the Broadcaster.
type Subscription struct {
	id int64
	ch chan []domain.PriceSnapshot
	b  *Broadcaster
}

// C yields price batches published after the subscription was created.
// The channel is closed by Close.
func (s *Subscription) C() <-chan []domain.PriceSnapshot {
	return s.ch
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.b.unsubscribe(s.id)
}

// Broadcaster fans published price batches out to any number of
// independent subscribers. Publishing never blocks on a slow subscriber.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int64]*Subscription
	seq    int64
	logger *zap.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:   make(map[int64]*Subscription),
		logger: logger,
	}
}

// Subscribe attaches a new listener. It only sees batches published after
// this call returns.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	sub := &Subscription{
		id: b.seq,
		ch: make(chan []domain.PriceSnapshot, subscriberBuffer),
		b:  b,
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Broadcaster) unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish delivers the batch to every current subscriber. When a
// subscriber's buffer is full its oldest unread batch is discarded.
func (b *Broadcaster) Publish(batch []domain.PriceSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- batch:
			continue
		default:
		}

		// drop the oldest buffered batch, then retry once
		select {
		case <-sub.ch:
			b.logger.Warn("slow price subscriber, dropping oldest batch", zap.Int64("subscriber", sub.id))
		default:
		}
		select {
		case sub.ch <- batch:
		default:
		}
	}
}
