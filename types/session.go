package types

import "time"

// Session is the authoritative liveness record for one interactive run of the
// host assistant. Identified by an opaque id chosen by the host; tracked via
// heartbeat timestamps. There is no explicit "closed" state: staleness is
// derived from LastHeartbeat, the only stored lifecycle marker is the one-shot
// MemoryExtractedAt timestamp.
type Session struct {
	ID                string     `json:"id" gorm:"primaryKey;column:id"`
	Project           string     `json:"project" gorm:"index"`
	WorkingOn         string     `json:"working_on,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	LastHeartbeat     time.Time  `json:"last_heartbeat" gorm:"index"`
	MemoryExtractedAt *time.Time `json:"memory_extracted_at,omitempty"`
}

// TableName maps Session to the sessions table.
func (Session) TableName() string { return "sessions" }

// ActiveWithin reports whether the session's heartbeat falls inside the given
// staleness threshold relative to now.
func (s *Session) ActiveWithin(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.LastHeartbeat) <= threshold
}

// Extracted reports whether the one-shot extraction marker is set.
func (s *Session) Extracted() bool {
	return s.MemoryExtractedAt != nil
}
