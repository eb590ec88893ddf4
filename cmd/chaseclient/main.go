// Command chaseclient plays episodes on a remote chasesim server. The
// policy runs locally; every reset, step, and projection goes over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/talgya/chase/internal/client"
	"github.com/talgya/chase/internal/engine"
	"github.com/talgya/chase/internal/policy"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	// Configuration from environment, overridable by flags.
	apiURL := flag.String("url", envOrDefault("CHASE_API_URL", "http://localhost:8080"), "chasesim API base URL")
	policyName := flag.String("policy", envOrDefault("CHASE_POLICY", "lookahead"), "policy: random, hold, lookahead, keypad")
	episodes := flag.Int("episodes", envIntOrDefault("CHASE_EPISODES", 10), "episodes to play")
	seed := flag.Int64("seed", int64(envIntOrDefault("CHASE_SEED", 0)), "base seed")
	maxSteps := flag.Int("max-steps", envIntOrDefault("CHASE_MAX_STEPS", 500), "truncate episodes after this many steps")
	interval := flag.Duration("interval", 0, "pause between steps")
	wait := flag.Duration("wait", 5*time.Minute, "how long to wait for the API to come up")
	flag.Parse()

	adminKey := os.Getenv("CHASE_ADMIN_KEY")
	if adminKey == "" {
		slog.Error("CHASE_ADMIN_KEY is required")
		os.Exit(1)
	}

	pol, err := policy.ByName(*policyName, policy.Options{Seed: *seed})
	if err != nil {
		slog.Error("bad policy", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(*apiURL, adminKey)

	slog.Info("waiting for chasesim API...", "url", *apiURL)
	waitCtx, cancel := context.WithTimeout(ctx, *wait)
	err = c.WaitReady(waitCtx)
	cancel()
	if err != nil {
		slog.Error("chasesim API did not become ready", "error", err)
		os.Exit(1)
	}

	runner := &engine.Runner{
		Episode:  c,
		Policy:   pol,
		MaxSteps: *maxSteps,
		Interval: *interval,
	}
	sums, err := runner.Run(ctx, *episodes, *seed)
	switch {
	case errors.Is(err, client.ErrRateLimited):
		slog.Error("server rate limit reached; raise api.steps_per_hour or slow down with -interval", "error", err)
	case err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, policy.ErrQuit):
		slog.Error("run failed", "error", err)
	}

	var reward int64
	wins := 0
	for _, s := range sums {
		reward += int64(s.TotalReward)
		if s.Result == engine.ResultWin {
			wins++
		}
	}
	fmt.Printf("%s played %s remote episodes: %d wins, total reward %s\n",
		pol.Name(), humanize.Comma(int64(len(sums))), wins, humanize.Comma(reward))

	if st, err := c.Status(); err == nil {
		fmt.Printf("Server episode: seed %d, %d steps, %d adversaries alive\n", st.Seed, st.Steps, st.AdversariesAlive)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
