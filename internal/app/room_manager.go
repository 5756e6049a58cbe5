package app

import (
	"sort"
	"sync"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
)

// Hub owns the membership sets of one kind of channel. Sets are created on
// first join and dropped when they become empty. Every operation runs under
// the hub's single lock.
type Hub[K ~string] struct {
	name string
	mu   sync.RWMutex
	sets map[K]core.MemberSet
}

type (
	RoomHub  = Hub[domain.RoomID]
	VoiceHub = Hub[domain.ChannelID]
)

func NewHub[K ~string](name string) *Hub[K] {
	return &Hub[K]{name: name, sets: make(map[K]core.MemberSet)}
}

// Join adds ms to key and returns the members that were there before it.
func (h *Hub[K]) Join(key K, ms core.MemberSession) []core.MemberSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sets[key]
	if !ok {
		set = core.NewMemberSet(h.name + ":" + string(key))
		h.sets[key] = set
	}
	existing := set.Snapshot()
	out := existing[:0]
	for _, m := range existing {
		if m.ID() != ms.ID() {
			out = append(out, m)
		}
	}
	set.Add(ms)
	return out
}

// Leave removes id from key and returns who is left. The set is deleted
// once empty.
func (h *Hub[K]) Leave(key K, id core.ConnectionID) ([]core.MemberSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sets[key]
	if !ok || !set.Remove(id) {
		return nil, false
	}
	if set.Len() == 0 {
		delete(h.sets, key)
		return nil, true
	}
	return set.Snapshot(), true
}

func (h *Hub[K]) Members(key K) []core.MemberSession {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.sets[key]
	if !ok {
		return nil
	}
	return set.Snapshot()
}

func (h *Hub[K]) Contains(key K, id core.ConnectionID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.sets[key]
	return ok && set.Has(id)
}

func (h *Hub[K]) Exists(key K) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sets[key]
	return ok
}

// Broadcast fans data out to key, skipping except (pass "" to reach everyone).
func (h *Hub[K]) Broadcast(key K, except core.ConnectionID, data core.Frame) core.PublishResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.sets[key]
	if !ok {
		return core.PublishResult{}
	}
	return set.Broadcast(except, data)
}

func (h *Hub[K]) List() []core.RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(h.sets))
	for name, s := range h.sets {
		out = append(out, core.RoomInfo{Name: string(name), MemberCount: s.Len()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
