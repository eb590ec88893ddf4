// Package config loads chasesim settings from defaults, an optional YAML
// file, a .env file, and CHASE_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/talgya/chase/internal/arena"
)

// ErrInvalid is returned for settings that cannot be used.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Arena   ArenaConfig   `yaml:"arena"`
	Run     RunConfig     `yaml:"run"`
	Storage StorageConfig `yaml:"storage"`
	API     APIConfig     `yaml:"api"`
}

type ArenaConfig struct {
	Size           int          `yaml:"size"`
	Adversaries    int          `yaml:"adversaries"`
	Hazards        int          `yaml:"hazards"`
	Layout         arena.Layout `yaml:"layout"`
	SpawnClearance int          `yaml:"spawn_clearance"`
}

type RunConfig struct {
	Policy     string        `yaml:"policy"`
	Episodes   int           `yaml:"episodes"`
	BaseSeed   int64         `yaml:"base_seed"`
	MaxSteps   int           `yaml:"max_steps"`   // 0 = no truncation
	Interval   time.Duration `yaml:"interval"`    // e.g. "250ms"
	PolicySeed int64         `yaml:"policy_seed"` // random policy only
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"` // empty = no trace store
}

type APIConfig struct {
	Port         int    `yaml:"port"` // 0 = no HTTP API
	AdminKey     string `yaml:"admin_key"`
	StepsPerHour int    `yaml:"steps_per_hour"` // per client IP, 0 = unlimited
}

// Default returns the classic 20x20 arena with five adversaries and ten
// hazards, played by the lookahead policy.
func Default() Config {
	g := arena.DefaultGenConfig()
	return Config{
		Arena: ArenaConfig{
			Size:        g.Size,
			Adversaries: g.Adversaries,
			Hazards:     g.Hazards,
			Layout:      g.Layout,
		},
		Run: RunConfig{
			Policy:   "lookahead",
			Episodes: 100,
			MaxSteps: 500,
		},
		Storage: StorageConfig{DBPath: "data/chase.db"},
		API:     APIConfig{StepsPerHour: 3600},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), then the environment. A .env file in the working
// directory is loaded into the environment first if present.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CHASE_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("CHASE_ADMIN_KEY"); v != "" {
		c.API.AdminKey = v
	}
	if v := os.Getenv("CHASE_POLICY"); v != "" {
		c.Run.Policy = v
	}
	if v := os.Getenv("CHASE_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CHASE_PORT=%q", ErrInvalid, v)
		}
		c.API.Port = n
	}
	if v := os.Getenv("CHASE_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: CHASE_SEED=%q", ErrInvalid, v)
		}
		c.Run.BaseSeed = n
	}
	return nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if err := c.GenConfig().Validate(); err != nil {
		return fmt.Errorf("%w: arena: %w", ErrInvalid, err)
	}
	switch {
	case c.Run.Episodes < 0:
		return fmt.Errorf("%w: run.episodes %d", ErrInvalid, c.Run.Episodes)
	case c.Run.MaxSteps < 0:
		return fmt.Errorf("%w: run.max_steps %d", ErrInvalid, c.Run.MaxSteps)
	case c.Run.Interval < 0:
		return fmt.Errorf("%w: run.interval %s", ErrInvalid, c.Run.Interval)
	case c.API.Port < 0 || c.API.Port > 65535:
		return fmt.Errorf("%w: api.port %d", ErrInvalid, c.API.Port)
	case c.API.StepsPerHour < 0:
		return fmt.Errorf("%w: api.steps_per_hour %d", ErrInvalid, c.API.StepsPerHour)
	}
	return nil
}

// GenConfig returns the arena generator settings. The seed is left zero;
// episodes supply their own.
func (c Config) GenConfig() arena.GenConfig {
	layout := c.Arena.Layout
	if layout == "" {
		layout = arena.LayoutUniform
	}
	return arena.GenConfig{
		Size:           c.Arena.Size,
		Adversaries:    c.Arena.Adversaries,
		Hazards:        c.Arena.Hazards,
		Layout:         layout,
		SpawnClearance: c.Arena.SpawnClearance,
	}
}
