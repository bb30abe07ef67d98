package broadcast

import (
	"context"
	"sync"

	"github.com/serkee5559/coin-portal/pkg/errors"
)

// MessageKind classifies outbound frames for queue-overflow policy.
type MessageKind int

const (
	KindSnapshot MessageKind = iota
	KindDelta
	KindSignal
)

// Message is one pre-marshalled frame bound for a subscriber.
type Message struct {
	Kind    MessageKind
	Payload []byte
}

// Subscriber is one attached consumer with a bounded outbound queue.
// A slow consumer loses intermediate deltas first; snapshot and signal
// frames are only lost by evicting the subscriber outright.
type Subscriber struct {
	ID string

	softLimit int
	hardLimit int

	mu     sync.Mutex
	queue  []Message
	closed bool
	notify chan struct{}
	done   chan struct{}
}

func newSubscriber(id string, softLimit, hardLimit int) *Subscriber {
	return &Subscriber{
		ID:        id,
		softLimit: softLimit,
		hardLimit: hardLimit,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// push enqueues a frame. Returns false when the subscriber must be evicted:
// the queue hit the hard limit and nothing droppable remains.
func (s *Subscriber) push(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	if len(s.queue) >= s.softLimit && msg.Kind == KindDelta {
		// Deltas are state replacements: dropping the oldest one for the
		// same stream only widens the next visible jump.
		if !s.dropOldestDelta() && len(s.queue) >= s.hardLimit {
			return false
		}
	}
	if len(s.queue) >= s.hardLimit {
		if !s.dropOldestDelta() {
			return false
		}
	}

	s.queue = append(s.queue, msg)
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

func (s *Subscriber) dropOldestDelta() bool {
	for i, queued := range s.queue {
		if queued.Kind == KindDelta {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Next blocks until a frame is available, the subscriber is closed, or the
// context ends.
func (s *Subscriber) Next(ctx context.Context) (Message, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return msg, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return Message{}, errors.NewErrorDetails("subscriber detached", string(errors.ErrSubscriberGone), "")
		}

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-s.done:
			return Message{}, errors.NewErrorDetails("subscriber detached", string(errors.ErrSubscriberGone), "")
		case <-s.notify:
		}
	}
}

// close marks the subscriber detached and wakes any blocked reader.
func (s *Subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}

// Closed reports whether the subscriber has been detached.
func (s *Subscriber) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// queueLen is a test hook.
func (s *Subscriber) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
