package core

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberSet is the membership of one room or voice channel.
// Implementations are not synchronized; the owning hub serializes access.
type MemberSet interface {
	Len() int
	Has(id ConnectionID) bool
	Add(ms MemberSession)
	Remove(id ConnectionID) bool
	Snapshot() []MemberSession
	Broadcast(except ConnectionID, data Frame) PublishResult
}

type RoomInfo struct {
	Name        string `json:"name"`
	MemberCount int    `json:"client_count"`
}
