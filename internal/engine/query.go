package engine

import (
	"fmt"
	"sort"
	"time"

	"campuscal/internal/datemath"
	"campuscal/internal/model"
)

// MembershipOracle answers organization membership questions. It is
// supplied by the club subsystem.
type MembershipOracle interface {
	IsMember(clubID, userID string) bool
}

// Filter is a visibility class for calendar and feed queries.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterPublic     Filter = "public"
	FilterPrivate    Filter = "private"
	FilterSchoolWide Filter = "school-wide"
	FilterOrgs       Filter = "orgs"
)

// ParseFilter maps API input to a Filter. Empty input means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPublic, FilterPrivate, FilterSchoolWide, FilterOrgs:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", model.ErrInvalidArgument, s)
	}
}

// WindowKind names the calendar span of a Window.
type WindowKind string

const (
	WindowDay   WindowKind = "day"
	WindowWeek  WindowKind = "week"
	WindowMonth WindowKind = "month"
)

// Window is an inclusive [Start, End] span. Events match by start time only.
type Window struct {
	Kind  WindowKind
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return datemath.InRange(t, w.Start, w.End)
}

func DayWindow(date time.Time) Window {
	return Window{Kind: WindowDay, Start: datemath.StartOfDay(date), End: datemath.EndOfDay(date)}
}

func WeekWindow(date time.Time, weekStart time.Weekday) Window {
	return Window{
		Kind:  WindowWeek,
		Start: datemath.StartOfWeekOn(date, weekStart),
		End:   datemath.EndOfWeekOn(date, weekStart),
	}
}

func MonthWindow(date time.Time) Window {
	return Window{Kind: WindowMonth, Start: datemath.StartOfMonth(date), End: datemath.EndOfMonth(date)}
}

// Query selects events for one caller.
type Query struct {
	Window Window
	Filter Filter
	UserID string
	// Category, when set, further restricts results to one tag.
	Category model.Category
}

// DayBucket holds the events starting on one calendar date.
type DayBucket struct {
	Date   time.Time      `json:"date"`
	Events []*model.Event `json:"events"`
}

// WeekView partitions a week into seven day buckets.
type WeekView struct {
	Start time.Time    `json:"start"`
	End   time.Time    `json:"end"`
	Days  [7]DayBucket `json:"days"`
}

// MonthCell is one cell of a month grid. Blank cells before day 1 and after
// the last day have Day == 0 and no events.
type MonthCell struct {
	Day    int            `json:"day"`
	Date   *time.Time     `json:"date,omitempty"`
	Count  int            `json:"count"`
	Events []*model.Event `json:"events,omitempty"`
}

// MonthGrid is a month laid out in rows of seven cells aligned to weekday.
type MonthGrid struct {
	Year      int          `json:"year"`
	Month     time.Month   `json:"month"`
	WeekStart time.Weekday `json:"week_start"`
	Cells     []MonthCell  `json:"cells"`
}

// Rows splits the grid into weeks.
func (g MonthGrid) Rows() [][]MonthCell {
	rows := make([][]MonthCell, 0, len(g.Cells)/7)
	for i := 0; i+7 <= len(g.Cells); i += 7 {
		rows = append(rows, g.Cells[i:i+7])
	}
	return rows
}

// Conflict is a pair of going-events whose time ranges overlap.
type Conflict struct {
	First  *model.Event `json:"first"`
	Second *model.Event `json:"second"`
}

// QueryEngine answers windowed, visibility-filtered reads over the store.
type QueryEngine struct {
	store     *Store
	rsvp      *RSVPManager
	weekStart time.Weekday
}

func NewQueryEngine(store *Store, rsvp *RSVPManager, weekStart time.Weekday) *QueryEngine {
	return &QueryEngine{store: store, rsvp: rsvp, weekStart: weekStart}
}

// Visible reports whether ev passes filter for userID.
//
//   - public: visibility is public.
//   - private: visibility is private and the user is going or interested.
//   - school-wide: public and not owned by an organization.
//   - orgs: owned by an organization the user is a member of.
//   - all: public, or private and related to the user, or owned by an
//     organization the user is a member of.
func Visible(ev *model.Event, filter Filter, userID string, oracle MembershipOracle) bool {
	public := ev.Visibility == model.VisibilityPublic
	private := ev.Visibility == model.VisibilityPrivate
	member := ev.OwnerClubID != "" && oracle != nil && oracle.IsMember(ev.OwnerClubID, userID)

	switch filter {
	case FilterPublic:
		return public
	case FilterPrivate:
		return private && ev.RelatedTo(userID)
	case FilterSchoolWide:
		return public && ev.OwnerClubID == ""
	case FilterOrgs:
		return member
	case FilterAll:
		return public || (private && ev.RelatedTo(userID)) || member
	default:
		return false
	}
}

// EventsInWindow returns copies of the matching events ascending by start.
func (q *QueryEngine) EventsInWindow(query Query, oracle MembershipOracle) []*model.Event {
	out := make([]*model.Event, 0)
	q.store.each(func(ev *model.Event) {
		if !query.Window.Contains(ev.StartTime) {
			return
		}
		if query.Category != "" && ev.Category != query.Category {
			return
		}
		if !Visible(ev, query.Filter, query.UserID, oracle) {
			return
		}
		out = append(out, ev.Clone())
	})
	sortByStart(out)
	return out
}

// Day lists the events starting on date's calendar day.
func (q *QueryEngine) Day(date time.Time, filter Filter, userID string, oracle MembershipOracle) []*model.Event {
	return q.EventsInWindow(Query{Window: DayWindow(date), Filter: filter, UserID: userID}, oracle)
}

// Week buckets the events of date's week by the local date of their start.
func (q *QueryEngine) Week(date time.Time, filter Filter, userID string, oracle MembershipOracle) WeekView {
	w := WeekWindow(date, q.weekStart)
	view := WeekView{Start: w.Start, End: w.End}
	for i := range view.Days {
		view.Days[i] = DayBucket{Date: datemath.AddDays(w.Start, i), Events: []*model.Event{}}
	}

	loc := date.Location()
	for _, ev := range q.EventsInWindow(Query{Window: w, Filter: filter, UserID: userID}, oracle) {
		i := datemath.WeekdayOffset(ev.StartTime.In(loc).Weekday(), q.weekStart)
		view.Days[i].Events = append(view.Days[i].Events, ev)
	}
	return view
}

// Month lays out date's month with leading and trailing blank cells so
// that every row has seven cells starting on the configured week start.
func (q *QueryEngine) Month(date time.Time, filter Filter, userID string, oracle MembershipOracle) MonthGrid {
	w := MonthWindow(date)
	year, month, _ := w.Start.Date()
	grid := MonthGrid{Year: year, Month: month, WeekStart: q.weekStart}

	lead := datemath.WeekdayOffset(w.Start.Weekday(), q.weekStart)
	days := datemath.DaysInMonth(year, month)
	for i := 0; i < lead; i++ {
		grid.Cells = append(grid.Cells, MonthCell{})
	}
	for d := 1; d <= days; d++ {
		day := datemath.AddDays(w.Start, d-1)
		grid.Cells = append(grid.Cells, MonthCell{Day: d, Date: &day})
	}
	for len(grid.Cells)%7 != 0 {
		grid.Cells = append(grid.Cells, MonthCell{})
	}

	loc := date.Location()
	for _, ev := range q.EventsInWindow(Query{Window: w, Filter: filter, UserID: userID}, oracle) {
		cell := &grid.Cells[lead+ev.StartTime.In(loc).Day()-1]
		cell.Events = append(cell.Events, ev)
		cell.Count++
	}
	return grid
}

// Conflicts lists pairs of events in w that userID is going to and whose
// [start, end) ranges overlap. Pairs are ordered by the first event's start.
func (q *QueryEngine) Conflicts(userID string, w Window) []Conflict {
	going := make([]*model.Event, 0)
	for _, ev := range q.rsvp.ListEventsForUser(userID) {
		if w.Contains(ev.StartTime) {
			going = append(going, ev)
		}
	}

	out := make([]Conflict, 0)
	for i := 0; i < len(going); i++ {
		for j := i + 1; j < len(going); j++ {
			// Sorted by start, so nothing later can overlap going[i].
			if !going[j].StartTime.Before(going[i].EndTime) {
				break
			}
			out = append(out, Conflict{First: going[i], Second: going[j]})
		}
	}
	return out
}

func sortByStart(events []*model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
}
