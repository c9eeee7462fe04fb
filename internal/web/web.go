package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"campuscal/internal/config"
	"campuscal/internal/engine"
	"campuscal/internal/ics"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

// UserHeader carries the caller's user id. Requests without it act as an
// anonymous viewer.
const UserHeader = "X-User-ID"

const (
	viewCacheTTL     = 30 * time.Second
	viewCacheCleanup = 2 * time.Minute
	maxBodyBytes     = 1 << 20
)

// Server provides the HTTP API over an engine.
type Server struct {
	cfg    *config.Config
	engine *engine.Engine
	loc    *time.Location
	mux    *http.ServeMux

	// Calendar views and ICS exports keyed by engine revision, so a
	// mutation makes every older entry unreachable.
	views *cache.Cache
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, eng *engine.Engine) *Server {
	s := &Server{
		cfg:    cfg,
		engine: eng,
		loc:    cfg.Location(),
		mux:    http.NewServeMux(),
		views:  cache.New(viewCacheTTL, viewCacheCleanup),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="campuscal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the API on cfg.Listen until ctx is canceled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, eng *engine.Engine) error {
	s := NewServer(cfg, eng)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("GET /api/events/{id}/siblings", s.handleSiblings)
	s.mux.HandleFunc("GET /api/events/{id}/rsvp", s.handleGetRSVP)
	s.mux.HandleFunc("PUT /api/events/{id}/rsvp", s.handlePutRSVP)

	s.mux.HandleFunc("GET /api/me/events", s.handleMyEvents)
	s.mux.HandleFunc("GET /api/me/conflicts", s.handleMyConflicts)
	s.mux.HandleFunc("GET /api/forums", s.handleForums)
	s.mux.HandleFunc("GET /api/forums/{id}/posts", s.handleForumPosts)
	s.mux.HandleFunc("GET /api/calendar/{view}", s.handleCalendar)

	s.mux.HandleFunc("GET /calendar.ics", s.handleICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleListEvents returns every event the caller can see under filter
// (default all), ascending by start.
//
// GET /api/events?filter=all&category=social
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := parseFilterParam(q.Get("filter"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	category := model.Category(q.Get("category"))
	user := userID(r)

	out := make([]*model.Event, 0)
	for _, ev := range s.engine.List() {
		if category != "" && ev.Category != category {
			continue
		}
		if s.engine.Visible(ev, filter, user) {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	writeJSON(w, http.StatusOK, out)
}

type createResponse struct {
	ID       string   `json:"id"`
	Siblings []string `json:"instance_ids,omitempty"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in model.EventInput
	if err := decodeBody(w, r, &in); err != nil {
		writeEngineError(w, err)
		return
	}

	id, err := s.engine.Create(in)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := createResponse{ID: id}
	if in.Recurrence != nil {
		if first, err := s.engine.Get(id); err == nil {
			for _, inst := range s.engine.ListByParent(first.ParentEventID) {
				resp.Siblings = append(resp.Siblings, inst.ID)
			}
		}
	}
	appLog.Info("api event created", "id", id, "instances", max(1, len(resp.Siblings)))
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.visibleEvent(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// visibleEvent loads the {id} event and hides it as not found unless the
// caller may see it under the all filter.
func (s *Server) visibleEvent(r *http.Request) (*model.Event, error) {
	id := r.PathValue("id")
	ev, err := s.engine.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.engine.Visible(ev, engine.FilterAll, userID(r)) {
		return nil, fmt.Errorf("event %q: %w", id, model.ErrNotFound)
	}
	return ev, nil
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Delete(id); err != nil {
		writeEngineError(w, err)
		return
	}
	appLog.Info("api event deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSiblings lists the remaining instances of the recurring event the
// given instance belongs to that the caller can see.
func (s *Server) handleSiblings(w http.ResponseWriter, r *http.Request) {
	ev, err := s.visibleEvent(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if ev.ParentEventID == "" {
		writeJSON(w, http.StatusOK, []*model.Event{ev})
		return
	}

	user := userID(r)
	out := make([]*model.Event, 0)
	for _, sib := range s.engine.ListByParent(ev.ParentEventID) {
		if s.engine.Visible(sib, engine.FilterAll, user) {
			out = append(out, sib)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type rsvpResponse struct {
	EventID string           `json:"event_id"`
	UserID  string           `json:"user_id"`
	Status  model.RSVPStatus `json:"status"`
}

type rsvpRequest struct {
	Status *string `json:"status"`
}

func (s *Server) handleGetRSVP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user := userID(r)
	status, err := s.engine.GetStatus(id, user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rsvpResponse{EventID: id, UserID: user, Status: status})
}

// handlePutRSVP sets the caller's status. A null or "none" status clears it.
//
// PUT /api/events/{id}/rsvp {"status": "going"}
func (s *Server) handlePutRSVP(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req rsvpRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	raw := ""
	if req.Status != nil {
		raw = *req.Status
	}
	status, err := engine.ParseStatus(raw)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	id := r.PathValue("id")
	if err := s.engine.SetStatus(id, user, status); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rsvpResponse{EventID: id, UserID: user, Status: status})
}

func (s *Server) handleMyEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.ListEventsForUser(user))
}

// handleMyConflicts reports overlapping going-events in the window around
// date.
//
// GET /api/me/conflicts?date=2024-03-04&view=week
func (s *Server) handleMyConflicts(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	date, err := s.parseDate(q.Get("date"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var win engine.Window
	switch q.Get("view") {
	case "day":
		win = engine.DayWindow(date)
	case "", "week":
		win = engine.WeekWindow(date, s.engine.WeekStart())
	case "month":
		win = engine.MonthWindow(date)
	default:
		writeEngineError(w, fmt.Errorf("%w: unknown view %q", model.ErrInvalidArgument, q.Get("view")))
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Conflicts(user, win))
}

func (s *Server) handleForums(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Forums())
}

func (s *Server) handleForumPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.engine.PostsForForum(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// handleCalendar serves the day list, week view or month grid containing
// date (default today in the configured timezone).
//
// GET /api/calendar/{day|week|month}?date=2024-03-15&filter=all&category=club
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	view := r.PathValue("view")
	switch view {
	case "day", "week", "month":
	default:
		writeError(w, http.StatusNotFound, model.Code(model.ErrNotFound), "unknown calendar view "+view)
		return
	}

	q := r.URL.Query()
	filter, err := parseFilterParam(q.Get("filter"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	date, err := s.parseDate(q.Get("date"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	category := model.Category(q.Get("category"))
	user := userID(r)

	key := fmt.Sprintf("%s|%d|%s|%s|%s|%s", view, s.engine.Revision(), user, filter, category, date.Format(time.DateOnly))
	if v, ok := s.views.Get(key); ok {
		writeJSON(w, http.StatusOK, v)
		return
	}

	var resp any
	switch {
	case category != "":
		// Category narrows the flat window listing; grids stay unfiltered
		// by tag.
		var win engine.Window
		switch view {
		case "day":
			win = engine.DayWindow(date)
		case "week":
			win = engine.WeekWindow(date, s.engine.WeekStart())
		default:
			win = engine.MonthWindow(date)
		}
		resp = s.engine.EventsInWindow(engine.Query{Window: win, Filter: filter, UserID: user, Category: category})
	case view == "day":
		resp = s.engine.Day(date, filter, user)
	case view == "week":
		resp = s.engine.Week(date, filter, user)
	default:
		resp = s.engine.Month(date, filter, user)
	}

	appLog.Debug("api calendar computed", "view", view, "date", date.Format(time.DateOnly), "filter", filter, "user", user)
	s.views.Set(key, resp, cache.DefaultExpiration)
	writeJSON(w, http.StatusOK, resp)
}

// handleICS exports the events visible to the caller as an iCalendar feed.
//
// GET /calendar.ics?filter=all
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilterParam(r.URL.Query().Get("filter"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	user := userID(r)

	key := fmt.Sprintf("ics|%d|%s|%s", s.engine.Revision(), user, filter)
	body, ok := s.views.Get(key)
	if !ok {
		events := make([]*model.Event, 0)
		for _, ev := range s.engine.List() {
			if s.engine.Visible(ev, filter, user) {
				events = append(events, ev)
			}
		}
		sortEvents(events)
		body = ics.Export(events, time.Now().UTC())
		s.views.Set(key, body, cache.DefaultExpiration)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="campuscal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.([]byte))
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, model.Code(model.ErrInvalidArgument), UserHeader+" header is required")
		return "", false
	}
	return user, true
}

func parseFilterParam(s string) (engine.Filter, error) {
	if s == "" {
		return engine.FilterAll, nil
	}
	return engine.ParseFilter(s)
}

// parseDate reads a YYYY-MM-DD date in the server timezone. Empty means
// today.
func (s *Server) parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Now().In(s.loc), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD: %v", model.ErrInvalidArgument, err)
	}
	return t, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", model.ErrInvalidArgument, err)
	}
	return nil
}

func sortEvents(events []*model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID < b.ID
	})
}

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidEvent),
		errors.Is(err, model.ErrInvalidTimeRange),
		errors.Is(err, model.ErrInvalidRecurrence),
		errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		appLog.Error("api request failed", err)
	}
	writeError(w, status, model.Code(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	type errResp struct {
		Error string `json:"error"`
		Code  string `json:"code,omitempty"`
	}
	writeJSON(w, status, errResp{Error: msg, Code: code})
}
