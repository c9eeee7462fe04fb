package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"campuscal/internal/model"
)

const productID = "-//campuscal//events//EN"

// Export renders events as a VCALENDAR. Each stored instance becomes its
// own VEVENT; recurrences are already materialized and no RRULE is
// emitted. Instances of a recurring event carry RELATED-TO with the
// authoring id.
func Export(events []*model.Event, stamp time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp)
		ve.SetCreatedTime(ev.CreatedAt)
		ve.SetStartAt(ev.StartTime)
		ve.SetEndAt(ev.EndTime)
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Link != "" {
			ve.SetProperty(ical.ComponentPropertyUrl, ev.Link)
		}
		if ev.Category != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(ev.Category)))
		}
		ve.SetProperty(ical.ComponentPropertyClass, strings.ToUpper(string(ev.Visibility)))
		if ev.ParentEventID != "" {
			ve.SetProperty(ical.ComponentProperty("RELATED-TO"), ev.ParentEventID)
		}
	}

	return []byte(cal.Serialize())
}
