package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscal/internal/config"
	"campuscal/internal/engine"
	"campuscal/internal/membership"
)

type eventJSON struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Category        string    `json:"category"`
	Visibility      string    `json:"visibility"`
	StartTime       time.Time `json:"start_time"`
	Attendees       []string  `json:"attendees"`
	ParentEventID   string    `json:"parent_event_id"`
	OccurrenceIndex int       `json:"occurrence_index"`
}

type errorJSON struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type fixture struct {
	t   *testing.T
	srv *Server
	h   http.Handler
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	if mutate != nil {
		mutate(cfg)
	}
	clock := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(
		engine.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
		engine.WithMembership(membership.NewStatic(map[string][]string{"chess": {"bob"}})),
	)
	srv := NewServer(cfg, eng)
	return &fixture{t: t, srv: srv, h: srv.Handler()}
}

func (f *fixture) do(method, path, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) create(body string) string {
	rec := f.do(http.MethodPost, "/api/events", "", body)
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const talkBody = `{"title":"Guest talk","category":"academic",
	"start_time":"2024-03-15T18:00:00Z","end_time":"2024-03-15T19:00:00Z",
	"posted_to_forums":["general"]}`

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCreateAndGetEvent(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)

	id := f.create(talkBody)
	rec := f.do(http.MethodGet, "/api/events/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ev := decode[eventJSON](t, rec)
	assert.Equal("Guest talk", ev.Title)
	assert.Equal("public", ev.Visibility)
	assert.Equal([]string{}, ev.Attendees)

	rec = f.do(http.MethodGet, "/api/events/missing", "", "")
	assert.Equal(http.StatusNotFound, rec.Code)
	assert.Equal("NOT_FOUND", decode[errorJSON](t, rec).Code)
}

func TestCreateValidation(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)

	cases := []struct {
		body string
		code string
	}{
		{
			body: `{"title":" ","start_time":"2024-03-01T10:00:00Z","end_time":"2024-03-01T11:00:00Z"}`,
			code: "INVALID_EVENT",
		},
		{
			body: `{"title":"x","start_time":"2024-03-01T10:00:00Z","end_time":"2024-03-01T09:00:00Z"}`,
			code: "INVALID_TIME_RANGE",
		},
		{
			body: `{"title":"x","start_time":"2024-03-01T10:00:00Z","end_time":"2024-03-01T11:00:00Z",
				"recurrence":{"type":"yearly","until":"2025-03-01T00:00:00Z"}}`,
			code: "INVALID_RECURRENCE",
		},
		{
			body: `{"title":`,
			code: "INVALID_ARGUMENT",
		},
	}
	for _, tc := range cases {
		rec := f.do(http.MethodPost, "/api/events", "", tc.body)
		assert.Equal(http.StatusBadRequest, rec.Code, tc.code)
		assert.Equal(tc.code, decode[errorJSON](t, rec).Code)
	}

	rec := f.do(http.MethodGet, "/api/events", "", "")
	assert.Equal("[]\n", rec.Body.String())
}

func TestCreateRecurringReturnsInstances(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/events", "", `{"title":"Yoga",
		"start_time":"2024-03-01T17:00:00Z","end_time":"2024-03-01T18:00:00Z",
		"recurrence":{"type":"weekly","until":"2024-03-22T00:00:00Z"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[struct {
		ID  string   `json:"id"`
		IDs []string `json:"instance_ids"`
	}](t, rec)
	require.Len(t, resp.IDs, 4)
	assert.Equal(resp.ID, resp.IDs[0])

	rec = f.do(http.MethodGet, "/api/events/"+resp.IDs[2]+"/siblings", "", "")
	siblings := decode[[]eventJSON](t, rec)
	require.Len(t, siblings, 4)
	for i, ev := range siblings {
		assert.Equal(i, ev.OccurrenceIndex)
	}

	rec = f.do(http.MethodDelete, "/api/events/"+resp.IDs[1], "", "")
	assert.Equal(http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodGet, "/api/events", "", "")
	assert.Len(decode[[]eventJSON](t, rec), 3)
	rec = f.do(http.MethodDelete, "/api/events/"+resp.IDs[1], "", "")
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestRSVPFlow(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	id := f.create(talkBody)

	rec := f.do(http.MethodPut, "/api/events/"+id+"/rsvp", "", `{"status":"going"}`)
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/api/events/"+id+"/rsvp", "alice", `{"status":"maybe"}`)
	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.Equal("INVALID_ARGUMENT", decode[errorJSON](t, rec).Code)

	rec = f.do(http.MethodPut, "/api/events/"+id+"/rsvp", "alice", `{"status":"going"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/events/"+id+"/rsvp", "alice", "")
	assert.Equal("going", string(decode[rsvpResponse](t, rec).Status))

	rec = f.do(http.MethodGet, "/api/me/events", "alice", "")
	mine := decode[[]eventJSON](t, rec)
	require.Len(t, mine, 1)
	assert.Equal(id, mine[0].ID)

	rec = f.do(http.MethodPut, "/api/events/"+id+"/rsvp", "alice", `{"status":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/api/me/events", "alice", "")
	assert.Empty(decode[[]eventJSON](t, rec))

	rec = f.do(http.MethodPut, "/api/events/missing/rsvp", "alice", `{"status":"going"}`)
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestPrivateEventVisibility(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	id := f.create(`{"title":"Study group","visibility":"private",
		"start_time":"2024-03-15T18:00:00Z","end_time":"2024-03-15T19:00:00Z"}`)

	rec := f.do(http.MethodGet, "/api/events", "alice", "")
	assert.Empty(decode[[]eventJSON](t, rec))

	f.do(http.MethodPut, "/api/events/"+id+"/rsvp", "alice", `{"status":"interested"}`)
	rec = f.do(http.MethodGet, "/api/events?filter=private", "alice", "")
	assert.Len(decode[[]eventJSON](t, rec), 1)
	rec = f.do(http.MethodGet, "/api/events?filter=public", "alice", "")
	assert.Empty(decode[[]eventJSON](t, rec))
	rec = f.do(http.MethodGet, "/api/events", "bob", "")
	assert.Empty(decode[[]eventJSON](t, rec))

	rec = f.do(http.MethodGet, "/api/events?filter=friends", "alice", "")
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestPrivateEventHiddenFromDirectLookup(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	rec := f.do(http.MethodPost, "/api/events", "", `{"title":"Study group","visibility":"private",
		"start_time":"2024-03-01T18:00:00Z","end_time":"2024-03-01T19:00:00Z",
		"recurrence":{"type":"weekly","until":"2024-03-15T00:00:00Z"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[struct {
		ID  string   `json:"id"`
		IDs []string `json:"instance_ids"`
	}](t, rec)
	require.Len(t, created.IDs, 3)

	for _, path := range []string{"/api/events/" + created.ID, "/api/events/" + created.ID + "/siblings"} {
		for _, user := range []string{"", "bob"} {
			rec = f.do(http.MethodGet, path, user, "")
			assert.Equal(http.StatusNotFound, rec.Code, path)
			assert.NotContains(rec.Body.String(), "Study group")
		}
	}

	f.do(http.MethodPut, "/api/events/"+created.ID+"/rsvp", "alice", `{"status":"going"}`)
	rec = f.do(http.MethodGet, "/api/events/"+created.ID, "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal([]string{"alice"}, decode[eventJSON](t, rec).Attendees)

	// Only the instance alice is related to is listed.
	rec = f.do(http.MethodGet, "/api/events/"+created.ID+"/siblings", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	siblings := decode[[]eventJSON](t, rec)
	require.Len(t, siblings, 1)
	assert.Equal(created.ID, siblings[0].ID)
}

func TestOrgEventsFollowMembership(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	f.create(`{"title":"Chess night","owner_club_id":"chess","category":"club",
		"start_time":"2024-03-12T18:00:00Z","end_time":"2024-03-12T21:00:00Z"}`)

	rec := f.do(http.MethodGet, "/api/events?filter=orgs", "bob", "")
	assert.Len(decode[[]eventJSON](t, rec), 1)
	rec = f.do(http.MethodGet, "/api/events?filter=orgs", "alice", "")
	assert.Empty(decode[[]eventJSON](t, rec))
	rec = f.do(http.MethodGet, "/api/events?filter=school-wide", "bob", "")
	assert.Empty(decode[[]eventJSON](t, rec))
}

func TestForumPosts(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/forums/general/posts", "", "")
	assert.Equal(http.StatusNotFound, rec.Code)

	first := f.create(talkBody)
	second := f.create(strings.Replace(talkBody, "Guest talk", "Panel", 1))

	rec = f.do(http.MethodGet, "/api/forums", "", "")
	assert.Equal([]string{"general"}, decode[[]string](t, rec))

	rec = f.do(http.MethodGet, "/api/forums/general/posts", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	posts := decode[[]struct {
		Event eventJSON `json:"event"`
	}](t, rec)
	require.Len(t, posts, 2)
	assert.Equal(second, posts[0].Event.ID)
	assert.Equal(first, posts[1].Event.ID)
}

func TestCalendarViews(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	f.create(talkBody)

	rec := f.do(http.MethodGet, "/api/calendar/day?date=2024-03-15", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(decode[[]eventJSON](t, rec), 1)

	rec = f.do(http.MethodGet, "/api/calendar/week?date=2024-03-13", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	week := decode[struct {
		Days []struct {
			Events []eventJSON `json:"events"`
		} `json:"days"`
	}](t, rec)
	require.Len(t, week.Days, 7)
	assert.Len(week.Days[5].Events, 1)

	rec = f.do(http.MethodGet, "/api/calendar/month?date=2024-03-01", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	month := decode[struct {
		Cells []struct {
			Day   int `json:"day"`
			Count int `json:"count"`
		} `json:"cells"`
	}](t, rec)
	require.Len(t, month.Cells, 42)
	assert.Equal(15, month.Cells[19].Day)
	assert.Equal(1, month.Cells[19].Count)

	rec = f.do(http.MethodGet, "/api/calendar/month?date=2024-03-01&category=sports", "", "")
	assert.Empty(decode[[]eventJSON](t, rec))

	rec = f.do(http.MethodGet, "/api/calendar/day?date=15-03-2024", "", "")
	assert.Equal(http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodGet, "/api/calendar/year", "", "")
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestCalendarCacheFollowsRevision(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/calendar/day?date=2024-03-15", "", "")
	assert.Empty(t, decode[[]eventJSON](t, rec))

	f.create(talkBody)
	rec = f.do(http.MethodGet, "/api/calendar/day?date=2024-03-15", "", "")
	assert.Len(t, decode[[]eventJSON](t, rec), 1)
}

func TestConflicts(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	a := f.create(talkBody)
	b := f.create(`{"title":"Dinner","start_time":"2024-03-15T18:30:00Z","end_time":"2024-03-15T20:00:00Z"}`)
	for _, id := range []string{a, b} {
		f.do(http.MethodPut, "/api/events/"+id+"/rsvp", "alice", `{"status":"going"}`)
	}

	rec := f.do(http.MethodGet, "/api/me/conflicts?date=2024-03-15&view=day", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	conflicts := decode[[]struct {
		First  eventJSON `json:"first"`
		Second eventJSON `json:"second"`
	}](t, rec)
	require.Len(t, conflicts, 1)
	assert.Equal(a, conflicts[0].First.ID)
	assert.Equal(b, conflicts[0].Second.ID)

	rec = f.do(http.MethodGet, "/api/me/conflicts?view=decade", "alice", "")
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestICSExport(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	f.create(talkBody)
	id := f.create(`{"title":"Secret meeting","visibility":"private",
		"start_time":"2024-03-16T18:00:00Z","end_time":"2024-03-16T19:00:00Z"}`)

	rec := f.do(http.MethodGet, "/calendar.ics", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(rec.Body.String(), "SUMMARY:Guest talk")
	assert.NotContains(rec.Body.String(), "Secret meeting")

	f.do(http.MethodPut, "/api/events/"+id+"/rsvp", "alice", `{"status":"going"}`)
	rec = f.do(http.MethodGet, "/calendar.ics", "alice", "")
	assert.Contains(rec.Body.String(), "SUMMARY:Secret meeting")
}

func TestBasicAuth(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "hunter2"}
	})

	assert.Equal(http.StatusOK, f.do(http.MethodGet, "/health", "", "").Code)
	assert.Equal(http.StatusUnauthorized, f.do(http.MethodGet, "/api/events", "", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(http.StatusOK, rec.Code)
}
