package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"campuscal/internal/config"
	"campuscal/internal/engine"
	"campuscal/internal/ics"
	appLog "campuscal/internal/log"
	"campuscal/internal/membership"
	"campuscal/internal/model"
)

// set from the go build
var (
	version = "0.1.0-dev"
	commit  = "none"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "campuscal",
	Short:         "campus event calendar engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version, commit)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		appLog.Error("campuscal failed", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/campuscal/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(versionCmd, serveCmd, importCmd)
}

// loadConfig reads the config file, applies CAMPUSCAL_* overrides and sets
// the log level. --debug wins over the configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	if debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	return cfg, nil
}

// newEngine builds an engine from cfg with the static club membership.
func newEngine(cfg *config.Config) *engine.Engine {
	return engine.New(
		engine.WithMaxOccurrences(cfg.MaxOccurrences),
		engine.WithWeekStart(cfg.WeekStartDay()),
		engine.WithMembership(membership.NewStatic(cfg.Clubs)),
	)
}

// sourcesFromConfig converts configured subscriptions, skipping entries
// without a URL.
func sourcesFromConfig(cfg *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		if c.URL == "" {
			continue
		}
		sources = append(sources, ics.Source{
			ID:         c.SourceID(),
			URL:        c.URL,
			ClubID:     c.ClubID,
			Forums:     c.Forums,
			Category:   model.Category(c.Category),
			Visibility: model.Visibility(c.Visibility),
		})
	}
	return sources
}
