package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"campuscal/internal/engine"
	"campuscal/internal/ics"
	"campuscal/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <file.ics>",
	Short: "load an ICS file and print the month of its first event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		body, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		filterName, _ := cmd.Flags().GetString("filter")
		filter, err := engine.ParseFilter(filterName)
		if err != nil {
			return err
		}
		user, _ := cmd.Flags().GetString("user")

		src := ics.Source{ID: filepath.Base(args[0])}
		parsed, err := ics.Parse(src, body)
		if err != nil {
			return err
		}

		eng := newEngine(cfg)
		stats, err := ics.NewImporter(eng).Apply(src.ID, parsed)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d events (%d failed), %d stored instances\n",
			stats.Created, stats.Failed, eng.Len())

		first, ok := earliest(eng.List())
		if !ok {
			return nil
		}
		grid := eng.Month(first.StartTime.In(cfg.Location()), filter, user)
		printMonth(cmd.OutOrStdout(), grid, cfg.Location())
		return nil
	},
}

func init() {
	importCmd.Flags().String("filter", string(engine.FilterAll), "visibility filter: all, public, private, school-wide, orgs")
	importCmd.Flags().String("user", "", "user id the filter is evaluated for")
}

func earliest(events []*model.Event) (*model.Event, bool) {
	var first *model.Event
	for _, ev := range events {
		if first == nil || ev.StartTime.Before(first.StartTime) {
			first = ev
		}
	}
	return first, first != nil
}

// printMonth writes one line per event, grouped by day.
func printMonth(w io.Writer, grid engine.MonthGrid, loc *time.Location) {
	fmt.Fprintf(w, "%s %d\n", grid.Month, grid.Year)
	for _, cell := range grid.Cells {
		if cell.Day == 0 || cell.Count == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\n", cell.Date.Format("Mon Jan 2"))
		for _, ev := range cell.Events {
			tags := []string{string(ev.Category)}
			if ev.Visibility == model.VisibilityPrivate {
				tags = append(tags, "private")
			}
			if ev.ParentEventID != "" {
				tags = append(tags, fmt.Sprintf("#%d", ev.OccurrenceIndex+1))
			}
			fmt.Fprintf(w, "  %s-%s  %s [%s]\n",
				ev.StartTime.In(loc).Format("15:04"), ev.EndTime.In(loc).Format("15:04"),
				ev.Title, strings.Join(tags, " "))
		}
	}
}
