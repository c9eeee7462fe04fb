package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"campuscal/internal/model"
	"campuscal/internal/recurrence"
)

// Store owns the canonical id -> event table. Callers only ever receive
// clones; mutation goes through Store, RSVPManager and the delete cascade.
type Store struct {
	events map[string]*model.Event

	now     func() time.Time
	newID   func() string
	expand  recurrence.Config
	created []func([]*model.Event)
	deleted []func(*model.Event)
}

// NewStore constructs an empty Store.
func NewStore(now func() time.Time, newID func() string, expand recurrence.Config) *Store {
	return &Store{
		events: make(map[string]*model.Event),
		now:    now,
		newID:  newID,
		expand: expand,
	}
}

// OnCreate registers fn to run after every successful Create with the full
// list of stored instances.
func (s *Store) OnCreate(fn func([]*model.Event)) {
	s.created = append(s.created, fn)
}

// OnDelete registers fn to run after an event is removed.
func (s *Store) OnDelete(fn func(*model.Event)) {
	s.deleted = append(s.deleted, fn)
}

// Create validates in, expands its recurrence if any, stores every
// instance and returns the id of the first one. Nothing is stored when
// validation or expansion fails.
func (s *Store) Create(in model.EventInput) (string, error) {
	base, err := s.build(in)
	if err != nil {
		return "", err
	}

	instances := []*model.Event{base}
	if in.Recurrence != nil {
		instances, err = recurrence.Expand(base, *in.Recurrence, s.expand)
		if err != nil {
			return "", err
		}
	}

	for _, ev := range instances {
		s.events[ev.ID] = ev
	}
	for _, fn := range s.created {
		fn(instances)
	}
	return instances[0].ID, nil
}

func (s *Store) build(in model.EventInput) (*model.Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrInvalidEvent)
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return nil, fmt.Errorf("%w: start and end time are required", model.ErrInvalidEvent)
	}
	if !in.EndTime.After(in.StartTime) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", model.ErrInvalidTimeRange,
			in.EndTime.Format(time.RFC3339), in.StartTime.Format(time.RFC3339))
	}

	visibility := in.Visibility
	switch visibility {
	case model.VisibilityPublic, model.VisibilityPrivate:
	case "":
		visibility = model.VisibilityPublic
	default:
		return nil, fmt.Errorf("%w: unknown visibility %q", model.ErrInvalidEvent, in.Visibility)
	}
	if in.MaxAttendees < 0 {
		return nil, fmt.Errorf("%w: max attendees is negative", model.ErrInvalidEvent)
	}
	if in.Recurrence != nil {
		if err := recurrence.Validate(*in.Recurrence); err != nil {
			return nil, err
		}
	}

	category := in.Category
	if category == "" {
		category = model.CategoryOther
	}

	ev := &model.Event{
		ID:             s.newID(),
		Title:          title,
		Description:    in.Description,
		Location:       in.Location,
		Link:           in.Link,
		Category:       category,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		Visibility:     visibility,
		OwnerClubID:    strings.TrimSpace(in.OwnerClubID),
		MaxAttendees:   in.MaxAttendees,
		Attendees:      model.UserSet{},
		Interested:     model.UserSet{},
		PostedToForums: uniqueForums(in.PostedToForums),
		CreatedAt:      s.now(),
	}
	if in.Recurrence != nil {
		r := *in.Recurrence
		ev.Recurrence = &r
	}
	return ev, nil
}

func uniqueForums(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Get returns a copy of the event.
func (s *Store) Get(id string) (*model.Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %q: %w", id, model.ErrNotFound)
	}
	return ev.Clone(), nil
}

func (s *Store) lookup(id string) (*model.Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %q: %w", id, model.ErrNotFound)
	}
	return ev, nil
}

// List returns copies of all events in no particular order.
func (s *Store) List() []*model.Event {
	out := make([]*model.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Clone())
	}
	return out
}

// ListByParent returns the surviving instances generated from parentID,
// ordered by occurrence index.
func (s *Store) ListByParent(parentID string) []*model.Event {
	out := make([]*model.Event, 0)
	for _, ev := range s.events {
		if ev.ParentEventID == parentID {
			out = append(out, ev.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurrenceIndex < out[j].OccurrenceIndex
	})
	return out
}

// Len returns the number of stored instances.
func (s *Store) Len() int {
	return len(s.events)
}

// Delete removes one event instance. Siblings from the same recurrence are
// untouched.
func (s *Store) Delete(id string) error {
	ev, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %q: %w", id, model.ErrNotFound)
	}
	delete(s.events, id)
	for _, fn := range s.deleted {
		fn(ev)
	}
	return nil
}

// each calls fn for every stored event without copying.
func (s *Store) each(fn func(*model.Event)) {
	for _, ev := range s.events {
		fn(ev)
	}
}
