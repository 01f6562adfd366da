package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/api"
	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/internal/state"
	"github.com/ShayCichocki/conclave/internal/tracing"
)

// app bundles what every command needs: config, logger, agent factory,
// retry executor, and the state database once opened.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	workDir string
	factory *api.Factory
	retry   *agent.RetryExecutor
	db      *state.DB
	closers []func()
}

// newApp loads configuration and builds the shared services.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg := cfg.LoggingConfig()
	if verbose {
		logCfg.Level = logging.LevelDebug
	}
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	workDir, err := os.Getwd()
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		workDir: workDir,
		closers: []func(){func() { closer.Close() }},
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init("conclave", Version(), cfg.Tracing.Output)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("tracing shutdown failed", "error", err)
			}
		})
	}

	a.factory = api.NewFactory(cfg,
		api.WithFactoryLogger(logger),
		api.WithWorkDir(workDir),
	)
	a.retry = agent.NewRetryExecutor(cfg.RetryPolicy(), agent.WithRetryLogger(logger))
	return a, nil
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registry builds every configured agent.
func (a *app) registry() (*agent.Registry, error) {
	return a.factory.Registry()
}

// plannerAgent returns the configured planner, or the first agent.
func (a *app) plannerAgent(reg *agent.Registry) (agent.Agent, error) {
	if name := a.cfg.Planner.Agent; name != "" {
		return reg.Get(name)
	}
	all := reg.All()
	if len(all) == 0 {
		return nil, fmt.Errorf("no agents configured")
	}
	return all[0], nil
}

// state opens and migrates the state database on first use.
func (a *app) state() (*state.DB, error) {
	if a.db != nil {
		return a.db, nil
	}

	var (
		db  *state.DB
		err error
	)
	switch {
	case a.cfg.State.Path != "":
		db, err = state.Open(a.cfg.State.Path)
	case a.cfg.State.Project:
		db, err = state.OpenProject(a.workDir)
	default:
		db, err = state.OpenGlobal()
	}
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state: %w", err)
	}

	a.db = db
	a.closers = append(a.closers, func() { db.Close() })
	return db, nil
}

// Close releases everything newApp and state opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// printUsage reports token usage across the API clients, if any were used.
func (a *app) printUsage(w io.Writer) {
	in, out, calls := a.factory.Usage()
	if calls == 0 {
		return
	}
	fmt.Fprintf(w, "Tokens: %s in / %s out over %s calls\n",
		formatNumber(int(in)), formatNumber(int(out)), formatNumber(calls))
}

// parseInputs turns repeated k=v flags into an input map.
func parseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid input %q: expected key=value", p)
		}
		inputs[k] = v
	}
	return inputs, nil
}

// printStatus prints a status message with a colored symbol.
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}

// formatNumber formats a number with commas.
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	offset := len(s) % 3
	if offset > 0 {
		result.WriteString(s[:offset])
		result.WriteString(",")
	}
	for i := offset; i < len(s); i += 3 {
		result.WriteString(s[i : i+3])
		if i+3 < len(s) {
			result.WriteString(",")
		}
	}
	return result.String()
}
