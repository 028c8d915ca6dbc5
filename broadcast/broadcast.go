// broadcast/broadcast.go
package broadcast

import (
	"sync"

	"github.com/hectormc-main/casa-playgroundServer/logger"
	"github.com/hectormc-main/casa-playgroundServer/models"
	"github.com/hectormc-main/casa-playgroundServer/network"
	"github.com/hectormc-main/casa-playgroundServer/session"
)

// Hub delivers state events to every connected session. It never blocks on a peer:
// a session whose queue is full is closed and dropped.
type Hub struct {
	sessions *session.Manager
	// mutex orders subscriptions against publishes
	mutex sync.Mutex
}

func NewHub(sessions *session.Manager) *Hub {
	return &Hub{sessions: sessions}
}

// Subscribe queues the message built by hello as the first message of sess, then
// registers it. No publish runs in between, so an event applied before hello was
// built is part of hello and every later event follows it.
func (h *Hub) Subscribe(sess *session.Session, hello func() ([]byte, error)) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	data, err := hello()
	if err != nil {
		return err
	}
	if err := sess.Enqueue(data); err != nil {
		return err
	}
	h.sessions.Add(sess)
	return nil
}

// Unsubscribe forgets the session with id.
func (h *Hub) Unsubscribe(id string) {
	h.sessions.Remove(id)
}

// Count is the number of subscribed sessions.
func (h *Hub) Count() int {
	return h.sessions.Count()
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.sessions.CloseAll()
}

// Broadcast enqueues data to every session and returns how many accepted it.
func (h *Hub) Broadcast(data []byte) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	delivered := 0
	for _, sess := range h.sessions.All() {
		if err := sess.Enqueue(data); err != nil {
			h.sessions.Remove(sess.GetID())
			logger.Log.Warnw("Dropped slow watcher", "session", sess.GetID())
			continue
		}
		delivered++
	}
	return delivered
}

// Publish encodes event as an event envelope and broadcasts it.
func (h *Hub) Publish(event models.Event) {
	data, err := network.Encode(network.MsgTypeEvent, event)
	if err != nil {
		logger.Log.Errorf("Failed to encode %s event: %v", event.Type, err)
		return
	}
	h.Broadcast(data)
}
