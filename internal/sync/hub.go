package sync

import (
	stdsync "sync"

	"github.com/syncread/syncread/internal/protocol"
)

// hub is the server's broadcast fan-out. Every connection subscribes; every
// inbound message is re-published to all subscribers, sender included.
// Publishing never blocks: a subscriber whose buffer is full is dropped and
// its channel closed, which ends that connection's write loop. A client that
// cannot keep up loses the connection rather than stalling the session.
type hub struct {
	mu       stdsync.Mutex
	subs     map[*subscription]struct{}
	capacity int
}

type subscription struct {
	hub *hub
	ch  chan protocol.SyncMessage
}

func newHub(capacity int) *hub {
	return &hub{
		subs:     make(map[*subscription]struct{}),
		capacity: capacity,
	}
}

// subscribe registers a new subscriber. It receives only messages published
// after this call; there is no replay.
func (h *hub) subscribe() *subscription {
	s := &subscription{hub: h, ch: make(chan protocol.SyncMessage, h.capacity)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *hub) publish(msg protocol.SyncMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			delete(h.subs, s)
			close(s.ch)
		}
	}
}

func (h *hub) subscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// C is the subscriber's receive channel. It is closed when the subscription
// is cancelled or the subscriber lags behind.
func (s *subscription) C() <-chan protocol.SyncMessage {
	return s.ch
}

// cancel removes the subscription. Safe to call after a lag-drop.
func (s *subscription) cancel() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s]; ok {
		delete(s.hub.subs, s)
		close(s.ch)
	}
}
