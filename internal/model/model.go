package model

import (
	"encoding/json"
	"sort"
	"time"
)

// Category is a display/filter tag. The engine does not interpret it.
type Category string

const (
	CategoryAcademic Category = "academic"
	CategorySports   Category = "sports"
	CategorySocial   Category = "social"
	CategoryParty    Category = "party"
	CategoryClub     Category = "club"
	CategoryOther    Category = "other"
)

// Visibility controls which callers may see an event.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Frequency is the period of a recurrence rule.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Recurrence describes how an authored event repeats. Occurrences whose start
// is at or before Until are generated.
type Recurrence struct {
	Type  Frequency `json:"type" yaml:"type"`
	Until time.Time `json:"until" yaml:"until"`
}

// RSVPStatus is a user's relationship to a single event.
type RSVPStatus string

const (
	StatusNone       RSVPStatus = "none"
	StatusInterested RSVPStatus = "interested"
	StatusGoing      RSVPStatus = "going"
)

// UserSet is a set of user ids. It marshals as a sorted JSON array.
type UserSet map[string]struct{}

func (s UserSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s UserSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s UserSet) Clone() UserSet {
	out := make(UserSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s UserSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// Event is one concrete event instance as held by the store. Instances
// produced from a recurring authoring call are independent records that
// point back to the authoring id through ParentEventID.
type Event struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Link        string   `json:"link,omitempty"`
	Category    Category `json:"category"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Visibility Visibility `json:"visibility"`

	// OwnerClubID is empty for events not owned by an organization.
	OwnerClubID string `json:"owner_club_id,omitempty"`

	// MaxAttendees is advisory; zero means no stated capacity.
	MaxAttendees int `json:"max_attendees,omitempty"`

	Attendees      UserSet  `json:"attendees"`
	Interested     UserSet  `json:"interested"`
	PostedToForums []string `json:"posted_to_forums,omitempty"`

	Recurrence      *Recurrence `json:"recurrence,omitempty"`
	ParentEventID   string      `json:"parent_event_id,omitempty"`
	OccurrenceIndex int         `json:"occurrence_index"`

	CreatedAt time.Time `json:"created_at"`
}

// Duration returns EndTime - StartTime.
func (e *Event) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// StatusFor reports userID's RSVP status as derived from set membership.
func (e *Event) StatusFor(userID string) RSVPStatus {
	switch {
	case e.Attendees.Has(userID):
		return StatusGoing
	case e.Interested.Has(userID):
		return StatusInterested
	default:
		return StatusNone
	}
}

// RelatedTo reports whether userID is attending or interested.
func (e *Event) RelatedTo(userID string) bool {
	return e.Attendees.Has(userID) || e.Interested.Has(userID)
}

// Clone returns a deep copy so callers cannot mutate store-owned sets.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Attendees = e.Attendees.Clone()
	c.Interested = e.Interested.Clone()
	if e.PostedToForums != nil {
		c.PostedToForums = append([]string(nil), e.PostedToForums...)
	}
	if e.Recurrence != nil {
		r := *e.Recurrence
		c.Recurrence = &r
	}
	return &c
}

// EventInput is the authoring payload accepted by the store.
type EventInput struct {
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Location       string      `json:"location"`
	Link           string      `json:"link"`
	Category       Category    `json:"category"`
	StartTime      time.Time   `json:"start_time"`
	EndTime        time.Time   `json:"end_time"`
	Visibility     Visibility  `json:"visibility"`
	OwnerClubID    string      `json:"owner_club_id"`
	MaxAttendees   int         `json:"max_attendees"`
	PostedToForums []string    `json:"posted_to_forums"`
	Recurrence     *Recurrence `json:"recurrence"`
}

// ForumPost links an event to a forum it was announced in.
type ForumPost struct {
	ForumID   string    `json:"forum_id"`
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PostView is a forum post resolved against the live event.
type PostView struct {
	Event     *Event    `json:"event"`
	CreatedAt time.Time `json:"created_at"`
}
