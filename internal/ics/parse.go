package ics

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/recurrence"
)

const defaultHorizon = 365 * 24 * time.Hour

// Source represents a single ICS subscription source and the attributes
// its events receive on import.
type Source struct {
	// ID is an internal identifier (e.g., config ICS ID).
	ID string
	// URL is the ICS endpoint.
	URL string

	ClubID     string
	Forums     []string
	Category   model.Category
	Visibility model.Visibility

	// Horizon bounds rules without UNTIL or COUNT. If zero, one year.
	Horizon time.Duration
}

// ParsedEvent is a VEVENT converted to an engine authoring payload.
type ParsedEvent struct {
	UID   string
	Input model.EventInput
	// ExDates are occurrence starts removed from the recurrence after
	// expansion.
	ExDates []time.Time
}

// Fingerprint identifies the imported content; it changes whenever any
// authored field changes.
func (p ParsedEvent) Fingerprint() string {
	in := p.Input
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%d\x00%d\x00%s\x00%s\x00%s",
		p.UID, in.Title, in.Description, in.Location, in.Link, in.Category,
		in.StartTime.UnixNano(), in.EndTime.UnixNano(), in.Visibility, in.OwnerClubID,
		strings.Join(in.PostedToForums, ","))
	if in.Recurrence != nil {
		fmt.Fprintf(h, "\x00%s\x00%d", in.Recurrence.Type, in.Recurrence.Until.UnixNano())
	}
	for _, ex := range p.ExDates {
		fmt.Fprintf(h, "\x00%d", ex.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}

// Parse converts an ICS payload into authoring payloads.
//
//   - VEVENTs that fail conversion are logged and skipped; the rest are
//     returned.
//   - RECURRENCE-ID overrides are skipped: instances are not edited in
//     place.
//   - RRULE must be DAILY, WEEKLY or MONTHLY with interval 1 and no BY*
//     parts. COUNT and UNTIL become an until bound at the last occurrence;
//     an unbounded rule is cut at the source horizon. Months a day 29-31
//     anchor skips are listed in ExDates.
func Parse(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		if ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")) != nil {
			appLog.Debug("ics override skipped", "id", src.ID)
			continue
		}
		ev, perr := parseVEvent(src, ve)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, fmt.Errorf("%w: missing UID", model.ErrInvalidEvent)
	}
	out.UID = uidProp.Value

	in := model.EventInput{
		Title:          propValue(ve, ical.ComponentPropertySummary),
		Description:    propValue(ve, ical.ComponentPropertyDescription),
		Location:       propValue(ve, ical.ComponentPropertyLocation),
		Link:           propValue(ve, ical.ComponentPropertyUrl),
		Category:       pickCategory(propValue(ve, ical.ComponentPropertyCategories), src.Category),
		Visibility:     src.Visibility,
		OwnerClubID:    src.ClubID,
		PostedToForums: src.Forums,
	}
	if in.Visibility == "" {
		in.Visibility = model.VisibilityPublic
	}
	switch strings.ToUpper(propValue(ve, ical.ComponentPropertyClass)) {
	case "PRIVATE", "CONFIDENTIAL":
		in.Visibility = model.VisibilityPrivate
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("%w: uid %s: DTSTART: %v", model.ErrInvalidEvent, out.UID, err)
	}
	allDay := false
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			allDay = true
		}
		if !strings.Contains(p.Value, "T") {
			allDay = true
		}
	}
	end, err := ve.GetEndAt()
	if err != nil {
		if !allDay {
			return out, fmt.Errorf("%w: uid %s: DTEND: %v", model.ErrInvalidTimeRange, out.UID, err)
		}
		end = start.AddDate(0, 0, 1)
	}
	in.StartTime = start
	in.EndTime = end

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		rec, err := parseRule(p.Value, start, src.Horizon)
		if err != nil {
			return out, fmt.Errorf("uid %s: %w", out.UID, err)
		}
		in.Recurrence = rec

		skipped, err := clampedOccurrences(start, *rec)
		if err != nil {
			return out, fmt.Errorf("uid %s: %w", out.UID, err)
		}
		out.ExDates = append(out.ExDates, skipped...)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	out.Input = in
	return out, nil
}

// parseRule maps an RRULE value onto the engine's recurrence model.
func parseRule(value string, start time.Time, horizon time.Duration) (*model.Recurrence, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRecurrence, err)
	}

	rec := &model.Recurrence{}
	switch opt.Freq {
	case rrule.DAILY:
		rec.Type = model.FrequencyDaily
	case rrule.WEEKLY:
		rec.Type = model.FrequencyWeekly
	case rrule.MONTHLY:
		rec.Type = model.FrequencyMonthly
	default:
		return nil, fmt.Errorf("%w: unsupported RRULE %q", model.ErrInvalidRecurrence, value)
	}
	if opt.Interval > 1 || len(opt.Byweekday) > 0 || len(opt.Bymonthday) > 0 ||
		len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 {
		return nil, fmt.Errorf("%w: unsupported RRULE %q", model.ErrInvalidRecurrence, value)
	}

	switch {
	case !opt.Until.IsZero() || opt.Count > 0:
		// Bound by the feed's last occurrence so the engine's day-granular
		// until cannot admit one the feed does not contain.
		opt.Dtstart = start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidRecurrence, err)
		}
		all := r.All()
		if len(all) == 0 {
			rec.Until = start
		} else {
			rec.Until = all[len(all)-1].In(start.Location())
		}
	default:
		if horizon <= 0 {
			horizon = defaultHorizon
		}
		rec.Until = start.Add(horizon)
	}
	return rec, nil
}

// clampedOccurrences lists the starts the engine adds for a monthly rule
// anchored after the 28th by clamping to the month's last day. RRULE skips
// those months, so they are excluded again after expansion.
func clampedOccurrences(start time.Time, rec model.Recurrence) ([]time.Time, error) {
	if rec.Type != model.FrequencyMonthly || start.Day() <= 28 {
		return nil, nil
	}
	r, err := recurrence.NewRRule(start, rec)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for _, t := range r.All() {
		if t.Day() != start.Day() {
			out = append(out, t)
		}
	}
	return out, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func pickCategory(raw string, fallback model.Category) model.Category {
	for _, part := range strings.Split(raw, ",") {
		switch c := model.Category(strings.ToLower(strings.TrimSpace(part))); c {
		case model.CategoryAcademic, model.CategorySports, model.CategorySocial,
			model.CategoryParty, model.CategoryClub, model.CategoryOther:
			return c
		}
	}
	if fallback != "" {
		return fallback
	}
	return model.CategoryOther
}

// parseICSTime parses a basic ICS date/date-time string. Floating values
// are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
