// Package membership provides club membership oracles for the event engine.
package membership

import "sync"

// Static answers membership from a fixed club -> members table, typically
// loaded from config. It is safe for concurrent use and can be replaced
// wholesale with Reset.
type Static struct {
	mu    sync.RWMutex
	clubs map[string]map[string]struct{}
}

// NewStatic builds an oracle from club id -> member user ids.
func NewStatic(clubs map[string][]string) *Static {
	s := &Static{}
	s.Reset(clubs)
	return s
}

// Reset replaces the whole membership table.
func (s *Static) Reset(clubs map[string][]string) {
	table := make(map[string]map[string]struct{}, len(clubs))
	for clubID, users := range clubs {
		set := make(map[string]struct{}, len(users))
		for _, u := range users {
			set[u] = struct{}{}
		}
		table[clubID] = set
	}
	s.mu.Lock()
	s.clubs = table
	s.mu.Unlock()
}

// IsMember reports whether userID belongs to clubID.
func (s *Static) IsMember(clubID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clubs[clubID][userID]
	return ok
}
