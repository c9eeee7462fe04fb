package recurrence

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"campuscal/internal/datemath"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

const (
	DefaultMaxOccurrences = 1000
)

// Config controls how recurrence expansion is performed.
type Config struct {
	// MaxOccurrences caps a single expansion. A rule producing more
	// occurrences is rejected as a whole. If zero, DefaultMaxOccurrences
	// is used.
	MaxOccurrences int
}

// InstanceKey identifies one generated occurrence of an authored event.
type InstanceKey struct {
	ParentID string
	Index    int
}

// ID derives a stable instance id from the parent id and occurrence index.
// The same key always yields the same id.
func (k InstanceKey) ID() string {
	ns, err := uuid.Parse(k.ParentID)
	if err != nil {
		ns = uuid.NewSHA1(uuid.NameSpaceOID, []byte(k.ParentID))
	}
	return uuid.NewSHA1(ns, []byte(strconv.Itoa(k.Index))).String()
}

// Validate checks that the rule names a supported period.
func Validate(rule model.Recurrence) error {
	switch rule.Type {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly:
		return nil
	default:
		return fmt.Errorf("%w: unsupported period %q", model.ErrInvalidRecurrence, rule.Type)
	}
}

// Expand turns base plus rule into the ordered list of concrete instances.
//
//   - The first occurrence starts at base.StartTime; later ones step by the
//     rule's period in base's location, keeping the wall-clock time of day.
//   - Every occurrence starting at or before rule.Until is included. A
//     date-only Until (midnight) includes its whole calendar day.
//   - If that date is before base.StartTime the result is exactly one
//     instance; the authored occurrence is never dropped.
//   - Monthly steps clamp the day of month to the target month's length.
//   - Each instance keeps base's duration, gets InstanceKey{base.ID, i}.ID()
//     and ParentEventID = base.ID, and starts with empty RSVP sets.
func Expand(base *model.Event, rule model.Recurrence, cfg Config) ([]*model.Event, error) {
	if err := Validate(rule); err != nil {
		return nil, err
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = DefaultMaxOccurrences
	}

	starts, err := occurrenceStarts(base.StartTime, rule, cfg.MaxOccurrences)
	if err != nil {
		return nil, err
	}

	dur := base.Duration()
	out := make([]*model.Event, 0, len(starts))
	for i, start := range starts {
		inst := base.Clone()
		inst.ID = InstanceKey{ParentID: base.ID, Index: i}.ID()
		inst.ParentEventID = base.ID
		inst.OccurrenceIndex = i
		inst.StartTime = start
		inst.EndTime = start.Add(dur)
		inst.Attendees = model.UserSet{}
		inst.Interested = model.UserSet{}
		r := rule
		inst.Recurrence = &r
		out = append(out, inst)
	}

	appLog.Debug("recurrence expanded",
		"parent", base.ID,
		"type", rule.Type,
		"until", rule.Until.Format(time.RFC3339),
		"count", len(out),
	)
	return out, nil
}

func occurrenceStarts(start time.Time, rule model.Recurrence, limit int) ([]time.Time, error) {
	if EffectiveUntil(start, rule.Until).Before(start) {
		return []time.Time{start}, nil
	}

	r, err := NewRRule(start, rule)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0)
	next := r.Iterator()
	for {
		occ, ok := next()
		if !ok {
			break
		}
		if len(out) == limit {
			return nil, fmt.Errorf("%w: more than %d occurrences before %s",
				model.ErrInvalidRecurrence, limit, rule.Until.Format(time.RFC3339))
		}
		// rrule works at second precision; carry the authored sub-second part.
		occ = time.Date(occ.Year(), occ.Month(), occ.Day(), occ.Hour(), occ.Minute(), occ.Second(),
			start.Nanosecond(), start.Location())
		out = append(out, occ)
	}
	if len(out) == 0 {
		out = append(out, start)
	}
	return out, nil
}

// EffectiveUntil is the inclusive bound for occurrence starts. A date-only
// until (midnight in its own or in start's location) covers its whole
// calendar day in start's location; any other until is used as given.
func EffectiveUntil(start, until time.Time) time.Time {
	local := until.In(start.Location())
	if until.Equal(datemath.StartOfDay(until)) || local.Equal(datemath.StartOfDay(local)) {
		return datemath.EndOfDay(local)
	}
	return until
}

// NewRRule builds the RFC 5545 rule equivalent to rule anchored at start.
//
// A monthly rule anchored on day 29..31 uses BYMONTHDAY=28..d with
// BYSETPOS=-1 so that short months yield their last day instead of being
// skipped.
func NewRRule(start time.Time, rule model.Recurrence) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Dtstart: start,
		Until:   EffectiveUntil(start, rule.Until),
	}

	switch rule.Type {
	case model.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case model.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
	case model.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		if d := start.Day(); d > 28 {
			for md := 28; md <= d; md++ {
				opt.Bymonthday = append(opt.Bymonthday, md)
			}
			opt.Bysetpos = []int{-1}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported period %q", model.ErrInvalidRecurrence, rule.Type)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRecurrence, err)
	}
	return r, nil
}
