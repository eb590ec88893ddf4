// Command chasesim plays chase episodes with a policy, records their traces,
// and serves the live episode over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/chase/internal/api"
	"github.com/talgya/chase/internal/config"
	"github.com/talgya/chase/internal/engine"
	"github.com/talgya/chase/internal/persistence"
	"github.com/talgya/chase/internal/policy"
	"github.com/talgya/chase/internal/render"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		episodes   = flag.Int("episodes", 0, "episodes to play (0 with -serve = none)")
		seed       = flag.Int64("seed", 0, "base seed")
		policyName = flag.String("policy", "", "policy: random, hold, lookahead, keypad")
		maxSteps   = flag.Int("max-steps", 0, "truncate episodes after this many steps")
		interval   = flag.Duration("interval", 0, "pause between steps")
		port       = flag.Int("port", 0, "HTTP API port (0 = off)")
		dbPath     = flag.String("db", "", "trace database path")
		serve      = flag.Bool("serve", false, "only serve the API; episodes are driven over HTTP")
		watch      = flag.Bool("watch", false, "draw every step on a terminal")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	setupLogging(tty, *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Flags override the file and the environment, but only when given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "episodes":
			cfg.Run.Episodes = *episodes
		case "seed":
			cfg.Run.BaseSeed = *seed
		case "policy":
			cfg.Run.Policy = *policyName
		case "max-steps":
			cfg.Run.MaxSteps = *maxSteps
		case "interval":
			cfg.Run.Interval = *interval
		case "port":
			cfg.API.Port = *port
		case "db":
			cfg.Storage.DBPath = *dbPath
		}
	})
	if *serve {
		cfg.Run.Episodes = 0
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid settings", "error", err)
		os.Exit(1)
	}

	gen := cfg.GenConfig()
	slog.Info("chasesim starting",
		"arena", fmt.Sprintf("%dx%d", gen.Size, gen.Size),
		"adversaries", gen.Adversaries,
		"hazards", gen.Hazards,
		"layout", gen.Layout,
		"spawn_clearance", gen.SpawnClearance,
	)

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Storage.DBPath != "" {
		os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0755)
		db, err = persistence.Open(cfg.Storage.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Storage.DBPath)
	}

	ep := engine.NewEpisode(gen)
	hub := api.NewHub()

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if cfg.API.Port > 0 {
		if cfg.API.AdminKey == "" {
			slog.Warn("CHASE_ADMIN_KEY not set, reset and step endpoints will be disabled")
		}
		apiServer = &api.Server{
			Episode:      ep,
			DB:           db,
			Hub:          hub,
			Port:         cfg.API.Port,
			AdminKey:     cfg.API.AdminKey,
			StepsPerHour: cfg.API.StepsPerHour,
		}
		apiServer.Start()
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Run.Episodes > 0 {
		if err := play(ctx, cfg, ep, hub, db, apiServer, tty && *watch); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run failed", "error", err)
		}
	}

	if apiServer != nil && ctx.Err() == nil {
		fmt.Println("Serving... (Ctrl+C to stop)")
		<-ctx.Done()
	}
	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
	}
	fmt.Println("chasesim stopped.")
}

func setupLogging(tty, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if tty {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func play(ctx context.Context, cfg config.Config, ep *engine.Episode, hub *api.Hub, db *persistence.DB, apiServer *api.Server, watch bool) error {
	pol, err := policy.ByName(cfg.Run.Policy, policy.Options{Seed: cfg.Run.PolicySeed})
	if err != nil {
		return err
	}

	runner := &engine.Runner{
		Episode:  ep,
		Policy:   pol,
		MaxSteps: cfg.Run.MaxSteps,
		Interval: cfg.Run.Interval,
	}
	if watch && pol.Name() != "keypad" {
		runner.OnStep = func(rec engine.StepRecord) {
			fmt.Printf("\nEpisode: %d Step: %d Action: %s Reward: %d\n%s\n",
				rec.Episode, rec.Step, rec.Action, rec.Outcome.Reward, render.Text(rec.Outcome.State))
		}
	}
	hub.Attach(runner)

	var rec *persistence.Recorder
	if db != nil {
		rec, err = persistence.NewRecorder(db, pol.Name(), cfg.Run.BaseSeed, cfg.Arena.Size)
		if err != nil {
			return err
		}
		rec.Attach(runner)
		if err := db.SaveMeta("last_run", rec.Run().ID); err != nil {
			slog.Warn("failed to save run metadata", "error", err)
		}
	}

	// The runner owns the episode; the API stays read-only until it is done.
	if apiServer != nil {
		apiServer.SetRunnerActive(true)
		defer apiServer.SetRunnerActive(false)
	}

	started := time.Now()
	sums, runErr := runner.Run(ctx, cfg.Run.Episodes, cfg.Run.BaseSeed)
	printSummary(pol.Name(), sums, started)

	if rec != nil {
		if err := rec.Err(); err != nil {
			return err
		}
		fmt.Printf("Trace saved as run %s (started %s)\n", rec.Run().ID, humanize.Time(rec.Run().Started()))
	}
	return runErr
}

func printSummary(policyName string, sums []engine.Summary, started time.Time) {
	var steps, reward int64
	counts := map[engine.Result]int64{}
	for _, s := range sums {
		steps += int64(s.Steps)
		reward += int64(s.TotalReward)
		counts[s.Result]++
	}

	fmt.Printf("\n%s played %s episodes (%s steps), started %s.\n",
		policyName,
		humanize.Comma(int64(len(sums))),
		humanize.Comma(steps),
		humanize.Time(started),
	)
	fmt.Printf("  wins %s, losses %s, truncated %s, total reward %s\n",
		humanize.Comma(counts[engine.ResultWin]),
		humanize.Comma(counts[engine.ResultLoss]),
		humanize.Comma(counts[engine.ResultTruncated]),
		humanize.Comma(reward),
	)
}
