package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscal/internal/config"
	"campuscal/internal/engine"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

func TestLoadConfigDebugFlag(t *testing.T) {
	t.Setenv("CAMPUSCAL_LOG_LEVEL", "warn")
	t.Cleanup(func() {
		configPath, debug = "", false
		appLog.SetLevel(appLog.LevelInfo)
	})
	configPath = filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, rootCmd.PersistentFlags().Parse([]string{"--config", configPath}))
	_, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, appLog.LevelWarn, appLog.CurrentLevel())

	require.NoError(t, rootCmd.PersistentFlags().Parse([]string{"--debug"}))
	assert.True(t, debug)
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, appLog.LevelDebug, appLog.CurrentLevel())
}

func TestSourcesFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ICS = []config.ICSConfig{
		{URL: "https://example.edu/a.ics", Name: "Registrar", Category: "academic", Forums: []string{"general"}},
		{Name: "no url"},
		{URL: "https://example.edu/b.ics", ID: "chess", ClubID: "chess", Visibility: "private"},
	}

	sources := sourcesFromConfig(cfg)
	require.Len(t, sources, 2)
	assert.Equal(t, "Registrar", sources[0].ID)
	assert.Equal(t, model.CategoryAcademic, sources[0].Category)
	assert.Equal(t, []string{"general"}, sources[0].Forums)
	assert.Equal(t, "chess", sources[1].ClubID)
	assert.Equal(t, model.VisibilityPrivate, sources[1].Visibility)
}

func TestPrintMonth(t *testing.T) {
	eng := engine.New()
	start := time.Date(2024, time.March, 4, 17, 0, 0, 0, time.UTC)
	_, err := eng.Create(model.EventInput{
		Title:      "Yoga",
		Category:   model.CategorySports,
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Recurrence: &model.Recurrence{Type: model.FrequencyWeekly, Until: start.AddDate(0, 0, 7)},
	})
	require.NoError(t, err)

	first, ok := earliest(eng.List())
	require.True(t, ok)
	assert.True(t, first.StartTime.Equal(start))

	var buf bytes.Buffer
	printMonth(&buf, eng.Month(start, engine.FilterAll, ""), time.UTC)
	assert.Equal(t, "March 2024\n"+
		"Mon Mar 4\n  17:00-18:00  Yoga [sports #1]\n"+
		"Mon Mar 11\n  17:00-18:00  Yoga [sports #2]\n", buf.String())

	_, ok = earliest(nil)
	assert.False(t, ok)
}
