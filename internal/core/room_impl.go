package core

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// memberSet is an in-memory membership set.
// It never closes adapter-owned resources.
type memberSet struct {
	name  string
	byCID map[ConnectionID]MemberSession
}

func NewMemberSet(name string) MemberSet {
	return &memberSet{
		name:  name,
		byCID: make(map[ConnectionID]MemberSession),
	}
}

func (s *memberSet) Len() int { return len(s.byCID) }

func (s *memberSet) Has(id ConnectionID) bool {
	_, ok := s.byCID[id]
	return ok
}

func (s *memberSet) Add(ms MemberSession) {
	s.byCID[ms.ID()] = ms
	log.Debug().Str("module", "core.members").Str("set", s.name).Str("cid", string(ms.ID())).Msg("member added")
}

func (s *memberSet) Remove(id ConnectionID) bool {
	if _, ok := s.byCID[id]; !ok {
		return false
	}
	delete(s.byCID, id)
	log.Debug().Str("module", "core.members").Str("set", s.name).Str("cid", string(id)).Msg("member removed")
	return true
}

// Snapshot returns members ordered by connection id so callers get a stable view.
func (s *memberSet) Snapshot() []MemberSession {
	out := make([]MemberSession, 0, len(s.byCID))
	for _, ms := range s.byCID {
		out = append(out, ms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (s *memberSet) Broadcast(except ConnectionID, data Frame) PublishResult {
	res := PublishResult{}
	for cid, m := range s.byCID {
		if cid == except {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.members").Str("set", s.name).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
