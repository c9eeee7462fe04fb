package ics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

// Target is the part of the event engine an import writes to.
type Target interface {
	Create(in model.EventInput) (string, error)
	Get(id string) (*model.Event, error)
	ListByParent(parentID string) []*model.Event
	Delete(id string) error
}

// ImportStats summarizes one import round for a source.
type ImportStats struct {
	Created   int
	Unchanged int
	Removed   int
	Failed    int
}

// Importer applies parsed feeds to a Target. Per source it remembers which
// instance ids each imported event produced, so that a later round only
// touches events whose content changed and keeps RSVPs on the rest.
type Importer struct {
	target Target

	mu       sync.Mutex
	imported map[string]map[string][]string // source id -> fingerprint -> instance ids
}

func NewImporter(target Target) *Importer {
	return &Importer{
		target:   target,
		imported: make(map[string]map[string][]string),
	}
}

// Apply makes the target reflect events for sourceID: new or changed
// events are created, events missing from the feed are deleted.
func (im *Importer) Apply(sourceID string, events []ParsedEvent) (ImportStats, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	var stats ImportStats
	var errs []error
	prev := im.imported[sourceID]
	next := make(map[string][]string, len(events))

	for _, pe := range events {
		fp := pe.Fingerprint()
		if _, dup := next[fp]; dup {
			continue
		}
		if ids, ok := prev[fp]; ok {
			next[fp] = ids
			stats.Unchanged++
			continue
		}
		ids, err := im.create(pe)
		if err != nil {
			stats.Failed++
			errs = append(errs, fmt.Errorf("ics: import %s/%s: %w", sourceID, pe.UID, err))
			continue
		}
		next[fp] = ids
		stats.Created++
	}

	for fp, ids := range prev {
		if _, keep := next[fp]; keep {
			continue
		}
		for _, id := range ids {
			err := im.target.Delete(id)
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				errs = append(errs, err)
				continue
			}
			stats.Removed++
		}
	}

	im.imported[sourceID] = next
	appLog.Info("ics import applied", "id", sourceID,
		"created", stats.Created, "unchanged", stats.Unchanged,
		"removed", stats.Removed, "failed", stats.Failed)
	return stats, errors.Join(errs...)
}

// create stores pe and drops instances listed in its EXDATEs. It returns
// the surviving instance ids.
func (im *Importer) create(pe ParsedEvent) ([]string, error) {
	id, err := im.target.Create(pe.Input)
	if err != nil {
		return nil, err
	}
	if pe.Input.Recurrence == nil {
		return []string{id}, nil
	}

	first, err := im.target.Get(id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	for _, inst := range im.target.ListByParent(first.ParentEventID) {
		if excluded(inst.StartTime, pe.ExDates) {
			if err := im.target.Delete(inst.ID); err != nil {
				return nil, err
			}
			continue
		}
		ids = append(ids, inst.ID)
	}
	return ids, nil
}

func excluded(start time.Time, exdates []time.Time) bool {
	for _, ex := range exdates {
		if ex.Equal(start) {
			return true
		}
	}
	return false
}

// Subscriber refreshes configured ICS sources into the engine on a cron
// schedule.
type Subscriber struct {
	fetcher  *Fetcher
	importer *Importer
	sources  []Source
	loc      *time.Location
}

func NewSubscriber(fetcher *Fetcher, importer *Importer, sources []Source, loc *time.Location) *Subscriber {
	if loc == nil {
		loc = time.Local
	}
	return &Subscriber{fetcher: fetcher, importer: importer, sources: sources, loc: loc}
}

// RefreshAll fetches, parses and applies every source once.
func (s *Subscriber) RefreshAll(ctx context.Context) error {
	results, errs := s.fetcher.FetchAll(ctx, s.sources)
	for _, res := range results {
		events, err := Parse(res.Source, res.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("ics: parse %s: %w", res.Source.ID, err))
			continue
		}
		if _, err := s.importer.Apply(res.Source.ID, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start runs RefreshAll immediately and then on schedule until ctx is done.
func (s *Subscriber) Start(ctx context.Context, schedule string) error {
	if len(s.sources) == 0 {
		appLog.Info("ics subscriptions disabled; no sources configured")
		return nil
	}

	c := cron.New(cron.WithLocation(s.loc))
	refresh := func() {
		if err := s.RefreshAll(ctx); err != nil {
			appLog.Error("ics refresh finished with errors", err)
		}
	}
	if _, err := c.AddFunc(schedule, refresh); err != nil {
		return fmt.Errorf("ics: invalid refresh schedule %q: %w", schedule, err)
	}

	refresh()
	c.Start()
	appLog.Info("ics subscriptions scheduled", "refresh", schedule, "sources", len(s.sources))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Info("ics subscriptions stopped")
	}()
	return nil
}
