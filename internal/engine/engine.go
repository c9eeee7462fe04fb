// Package engine is the campus event engine: the event store, RSVP state,
// forum post index and the calendar query layer, exposed through a single
// Engine service object.
package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/recurrence"
)

// Engine composes the store, RSVP manager, forum index and query engine.
// Every method takes the engine lock, so each operation is atomic with
// respect to the others.
type Engine struct {
	mu sync.RWMutex

	store  *Store
	rsvp   *RSVPManager
	forums *ForumIndex
	query  *QueryEngine
	oracle MembershipOracle

	revision uint64
}

type options struct {
	now            func() time.Time
	newID          func() string
	maxOccurrences int
	weekStart      time.Weekday
	oracle         MembershipOracle
}

// Option configures an Engine.
type Option func(*options)

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator sets the generator for authoring ids.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithMaxOccurrences caps recurrence expansion.
func WithMaxOccurrences(n int) Option {
	return func(o *options) { o.maxOccurrences = n }
}

// WithWeekStart sets the first day of week views and month grids.
func WithWeekStart(d time.Weekday) Option {
	return func(o *options) { o.weekStart = d }
}

// WithMembership sets the membership oracle used by the orgs and all
// filters.
func WithMembership(oracle MembershipOracle) Option {
	return func(o *options) { o.oracle = oracle }
}

// New constructs an empty Engine.
func New(opts ...Option) *Engine {
	o := options{
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		weekStart: time.Sunday,
	}
	for _, opt := range opts {
		opt(&o)
	}

	store := NewStore(o.now, o.newID, recurrence.Config{MaxOccurrences: o.maxOccurrences})
	rsvp := NewRSVPManager(store)
	return &Engine{
		store:  store,
		rsvp:   rsvp,
		forums: NewForumIndex(store),
		query:  NewQueryEngine(store, rsvp, o.weekStart),
		oracle: o.oracle,
	}
}

// WeekStart returns the configured first day of the week.
func (e *Engine) WeekStart() time.Weekday {
	return e.query.weekStart
}

// Revision increases on every successful mutation.
func (e *Engine) Revision() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.revision
}

// Create stores the event (and its recurrence instances) and returns the
// id of the first instance.
func (e *Engine) Create(in model.EventInput) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, err := e.store.Create(in)
	if err != nil {
		appLog.Debug("event create rejected", "title", in.Title, "reason", err)
		return "", err
	}
	e.revision++
	appLog.Debug("event created", "id", id, "title", in.Title, "recurring", in.Recurrence != nil)
	return id, nil
}

// Get returns a copy of the event.
func (e *Engine) Get(id string) (*model.Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Get(id)
}

// List returns copies of every event, in no particular order.
func (e *Engine) List() []*model.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.List()
}

// ListByParent returns the remaining instances of a recurring authoring
// call ordered by occurrence index.
func (e *Engine) ListByParent(parentID string) []*model.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.ListByParent(parentID)
}

// Delete removes one instance and its forum references.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Delete(id); err != nil {
		return err
	}
	e.revision++
	appLog.Debug("event deleted", "id", id)
	return nil
}

// SetStatus moves userID to status for the event. StatusNone clears.
func (e *Engine) SetStatus(eventID, userID string, status model.RSVPStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.rsvp.SetStatus(eventID, userID, status); err != nil {
		return err
	}
	e.revision++
	appLog.Debug("rsvp updated", "event", eventID, "user", userID, "status", status)
	return nil
}

// GetStatus reports userID's status for the event.
func (e *Engine) GetStatus(eventID, userID string) (model.RSVPStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rsvp.GetStatus(eventID, userID)
}

// ListEventsForUser returns the events userID is going to.
func (e *Engine) ListEventsForUser(userID string) []*model.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rsvp.ListEventsForUser(userID)
}

// PostsForForum returns the forum's event posts, most recent first.
func (e *Engine) PostsForForum(forumID string) ([]model.PostView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.forums.PostsForForum(forumID)
}

// Forums returns the ids of every forum that has received a post, sorted.
func (e *Engine) Forums() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.forums.Forums()
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored event instances.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Len()
}

// EventsInWindow answers an arbitrary windowed query.
func (e *Engine) EventsInWindow(q Query) []*model.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.query.EventsInWindow(q, e.oracle)
}

// Day lists the events starting on date's calendar day.
func (e *Engine) Day(date time.Time, filter Filter, userID string) []*model.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.query.Day(date, filter, userID, e.oracle)
}

// Week buckets the events of date's week by day.
func (e *Engine) Week(date time.Time, filter Filter, userID string) WeekView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.query.Week(date, filter, userID, e.oracle)
}

// Month builds the month grid containing date.
func (e *Engine) Month(date time.Time, filter Filter, userID string) MonthGrid {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.query.Month(date, filter, userID, e.oracle)
}

// Conflicts lists overlapping going-events for userID inside w.
func (e *Engine) Conflicts(userID string, w Window) []Conflict {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.query.Conflicts(userID, w)
}

// Visible applies the engine's membership oracle to Visible.
func (e *Engine) Visible(ev *model.Event, filter Filter, userID string) bool {
	return Visible(ev, filter, userID, e.oracle)
}
