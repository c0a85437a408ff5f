// Package notification fans state snapshots out to stream subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// SequenceField is the message field carrying the broadcast sequence number.
const SequenceField = "sequence_no"

// DefaultSendTimeout bounds a single subscriber send.
const DefaultSendTimeout = 500 * time.Millisecond

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*structpb.Struct) error
}

type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription

	sequenceMu sync.Mutex
	sequenceNo uint64

	pendingMu sync.Mutex
	pending   chan *structpb.Struct

	sendTimeout time.Duration
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		pending:       make(chan *structpb.Struct, 1),
		sendTimeout:   DefaultSendTimeout,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{id: id, stream: stream}
	zlog.Debug().Msgf("notification: subscribed %s", id)
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
	zlog.Debug().Msgf("notification: unsubscribed %s", subscriptionID)
}

// NextSequenceNo returns the next sequence number.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceMu.Lock()
	defer m.sequenceMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Stamp sets the next sequence number on msg.
func (m *Manager) Stamp(msg *structpb.Struct) *structpb.Struct {
	if msg.Fields == nil {
		msg.Fields = make(map[string]*structpb.Value)
	}
	msg.Fields[SequenceField] = structpb.NewNumberValue(float64(m.NextSequenceNo()))
	return msg
}

// Broadcast sends msg to all subscribers. Each send is bounded by the send
// timeout so a stuck subscriber cannot hold up the others.
func (m *Manager) Broadcast(msg *structpb.Struct) {
	m.Stamp(msg)

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			// Streams are not safe for concurrent sends; each gets its own copy.
			out := proto.Clone(msg).(*structpb.Struct)
			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(out)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send to %s failed: %v", s.id, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send to %s timed out", s.id)
			}
		}(sub)
	}
	wg.Wait()
}

// Publish queues msg for the Run loop. Only the newest pending message is
// kept; Publish never blocks.
func (m *Manager) Publish(msg *structpb.Struct) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	select {
	case <-m.pending:
	default:
	}
	m.pending <- msg
}

// Run broadcasts published messages until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.pending:
			m.Broadcast(msg)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
