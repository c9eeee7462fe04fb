package engine

import (
	"fmt"

	"campuscal/internal/model"
)

// RSVPManager applies going/interested transitions to stored events and
// keeps a per-user index of the events each user is related to.
//
// The event's Attendees/Interested sets are the source of truth; byUser is
// derived and rebuilt on every transition and delete.
type RSVPManager struct {
	store  *Store
	byUser map[string]map[string]model.RSVPStatus
}

// NewRSVPManager wires a manager to store. Deleting an event drops it from
// the per-user index.
func NewRSVPManager(store *Store) *RSVPManager {
	m := &RSVPManager{
		store:  store,
		byUser: make(map[string]map[string]model.RSVPStatus),
	}
	store.OnDelete(m.forget)
	return m
}

// ParseStatus maps API input to a status. "", "none" and "null" clear.
func ParseStatus(s string) (model.RSVPStatus, error) {
	switch s {
	case "", "none", "null":
		return model.StatusNone, nil
	case string(model.StatusGoing):
		return model.StatusGoing, nil
	case string(model.StatusInterested):
		return model.StatusInterested, nil
	default:
		return "", fmt.Errorf("%w: unknown rsvp status %q", model.ErrInvalidArgument, s)
	}
}

// SetStatus removes userID from both sets of the event and then, unless
// status is none, adds it to the target set. Repeating a call leaves the
// state unchanged. Capacity is not enforced.
func (m *RSVPManager) SetStatus(eventID, userID string, status model.RSVPStatus) error {
	switch status {
	case model.StatusNone, model.StatusGoing, model.StatusInterested:
	case "":
		status = model.StatusNone
	default:
		return fmt.Errorf("%w: unknown rsvp status %q", model.ErrInvalidArgument, status)
	}

	ev, err := m.store.lookup(eventID)
	if err != nil {
		return err
	}

	delete(ev.Attendees, userID)
	delete(ev.Interested, userID)
	switch status {
	case model.StatusGoing:
		ev.Attendees[userID] = struct{}{}
	case model.StatusInterested:
		ev.Interested[userID] = struct{}{}
	}

	m.index(userID, eventID, status)
	return nil
}

func (m *RSVPManager) index(userID, eventID string, status model.RSVPStatus) {
	if status == model.StatusNone {
		if byEvent, ok := m.byUser[userID]; ok {
			delete(byEvent, eventID)
			if len(byEvent) == 0 {
				delete(m.byUser, userID)
			}
		}
		return
	}
	byEvent, ok := m.byUser[userID]
	if !ok {
		byEvent = make(map[string]model.RSVPStatus)
		m.byUser[userID] = byEvent
	}
	byEvent[eventID] = status
}

// GetStatus reports userID's status for the event.
func (m *RSVPManager) GetStatus(eventID, userID string) (model.RSVPStatus, error) {
	ev, err := m.store.lookup(eventID)
	if err != nil {
		return "", err
	}
	return ev.StatusFor(userID), nil
}

// ListEventsForUser returns copies of the events userID is going to.
// Interested-only events are not included.
func (m *RSVPManager) ListEventsForUser(userID string) []*model.Event {
	out := make([]*model.Event, 0)
	for eventID, status := range m.byUser[userID] {
		if status != model.StatusGoing {
			continue
		}
		ev, err := m.store.lookup(eventID)
		if err != nil {
			continue
		}
		out = append(out, ev.Clone())
	}
	sortByStart(out)
	return out
}

func (m *RSVPManager) forget(ev *model.Event) {
	for userID := range ev.Attendees {
		m.index(userID, ev.ID, model.StatusNone)
	}
	for userID := range ev.Interested {
		m.index(userID, ev.ID, model.StatusNone)
	}
}
