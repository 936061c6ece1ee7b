// Package client is the subscriber side of the chat: it loads the backlog,
// follows the live channel and keeps a local, ordered view of the messages.
package client

import (
	"sort"
	"sync"

	"nexus-chat/internal/models"
)

// Timeline is the local message list fed by the backlog and the live
// stream. It keeps at most one entry per message id, sorted by CreatedAt;
// messages with equal CreatedAt stay in arrival order.
type Timeline struct {
	mu   sync.RWMutex
	msgs []models.Message
	seen map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{seen: map[string]struct{}{}}
}

// Add merges one live message. It reports false for a message already held.
func (t *Timeline) Add(msg models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insert(msg)
}

// MergeBacklog merges a history response. Live messages received before
// the backlog arrived are kept.
func (t *Timeline) MergeBacklog(msgs []models.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	added := 0
	for _, m := range msgs {
		if t.insert(m) {
			added++
		}
	}
	return added
}

func (t *Timeline) insert(msg models.Message) bool {
	if _, ok := t.seen[msg.ID]; ok {
		return false
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	t.seen[msg.ID] = struct{}{}

	i := sort.Search(len(t.msgs), func(i int) bool {
		return t.msgs[i].CreatedAt.After(msg.CreatedAt)
	})
	t.msgs = append(t.msgs, models.Message{})
	copy(t.msgs[i+1:], t.msgs[i:])
	t.msgs[i] = msg
	return true
}

// Messages returns a copy of the current list.
func (t *Timeline) Messages() []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}
