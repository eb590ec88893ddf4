// Package persistence provides SQLite-based storage for episode traces.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run id is not in the store.
var ErrRunNotFound = errors.New("run not found")

// DB wraps a SQLite connection for trace persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		policy TEXT NOT NULL,
		base_seed INTEGER NOT NULL,
		arena_size INTEGER NOT NULL,
		started_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS episodes (
		run_id TEXT NOT NULL,
		episode INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		total_reward INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		PRIMARY KEY (run_id, episode)
	);

	CREATE TABLE IF NOT EXISTS steps (
		run_id TEXT NOT NULL,
		episode INTEGER NOT NULL,
		step INTEGER NOT NULL,
		action INTEGER,
		reward INTEGER,
		done INTEGER NOT NULL,
		cells TEXT NOT NULL,
		PRIMARY KEY (run_id, episode, step)
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one Runner invocation: a policy playing consecutive seeds.
type Run struct {
	ID        string `db:"id" json:"id"`
	Policy    string `db:"policy" json:"policy"`
	BaseSeed  int64  `db:"base_seed" json:"base_seed"`
	ArenaSize int    `db:"arena_size" json:"arena_size"`
	StartedAt int64  `db:"started_at" json:"started_at"` // unix seconds
}

// Started returns StartedAt as a time.
func (r Run) Started() time.Time {
	return time.Unix(r.StartedAt, 0)
}

// RunSummary is a Run with its episode aggregates.
type RunSummary struct {
	Run
	Episodes    int `db:"episodes" json:"episodes"`
	Wins        int `db:"wins" json:"wins"`
	TotalReward int `db:"total_reward" json:"total_reward"`
}

// EpisodeRow is a finished episode.
type EpisodeRow struct {
	RunID       string `db:"run_id" json:"run_id"`
	Episode     int    `db:"episode" json:"episode"`
	Seed        int64  `db:"seed" json:"seed"`
	Steps       int    `db:"steps" json:"steps"`
	TotalReward int    `db:"total_reward" json:"total_reward"`
	Outcome     string `db:"outcome" json:"outcome"`
}

// StepRow is one trace line. Step 0 is the initial state and has no action
// or reward.
type StepRow struct {
	RunID   string        `db:"run_id"`
	Episode int           `db:"episode"`
	Step    int           `db:"step"`
	Action  sql.NullInt64 `db:"action"`
	Reward  sql.NullInt64 `db:"reward"`
	Done    bool          `db:"done"`
	Cells   string        `db:"cells"`
}

// CreateRun inserts a new run with a fresh id.
func (db *DB) CreateRun(policy string, baseSeed int64, arenaSize int) (Run, error) {
	r := Run{
		ID:        uuid.NewString(),
		Policy:    policy,
		BaseSeed:  baseSeed,
		ArenaSize: arenaSize,
		StartedAt: time.Now().Unix(),
	}
	_, err := db.conn.NamedExec(`INSERT INTO runs (id, policy, base_seed, arena_size, started_at)
		VALUES (:id, :policy, :base_seed, :arena_size, :started_at)`, r)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	slog.Debug("run created", "run", r.ID, "policy", policy, "base_seed", baseSeed)
	return r, nil
}

// GetRun loads one run.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT id, policy, base_seed, arena_size, started_at FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]RunSummary, error) {
	runs := []RunSummary{}
	err := db.conn.Select(&runs, `
		SELECT r.id, r.policy, r.base_seed, r.arena_size, r.started_at,
			COUNT(e.episode) AS episodes,
			COALESCE(SUM(CASE WHEN e.outcome = 'win' THEN 1 ELSE 0 END), 0) AS wins,
			COALESCE(SUM(e.total_reward), 0) AS total_reward
		FROM runs r
		LEFT JOIN episodes e ON e.run_id = r.id
		GROUP BY r.seq
		ORDER BY r.seq DESC
		LIMIT ?`, limit)
	return runs, err
}

// Episodes returns a run's finished episodes in order.
func (db *DB) Episodes(runID string) ([]EpisodeRow, error) {
	rows := []EpisodeRow{}
	err := db.conn.Select(&rows,
		"SELECT run_id, episode, seed, steps, total_reward, outcome FROM episodes WHERE run_id = ? ORDER BY episode",
		runID,
	)
	return rows, err
}

// Steps returns a run's trace in (episode, step) order.
func (db *DB) Steps(runID string) ([]StepRow, error) {
	rows := []StepRow{}
	err := db.conn.Select(&rows,
		"SELECT run_id, episode, step, action, reward, done, cells FROM steps WHERE run_id = ? ORDER BY episode, step",
		runID,
	)
	return rows, err
}

// SaveEpisode writes an episode and its trace in one transaction.
func (db *DB) SaveEpisode(ep EpisodeRow, steps []StepRow) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT OR REPLACE INTO episodes (run_id, episode, seed, steps, total_reward, outcome)
		VALUES (:run_id, :episode, :seed, :steps, :total_reward, :outcome)`, ep)
	if err != nil {
		return fmt.Errorf("insert episode %d: %w", ep.Episode, err)
	}

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO steps
		(run_id, episode, step, action, reward, done, cells)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range steps {
		done := 0
		if s.Done {
			done = 1
		}
		if _, err := stmt.Exec(ep.RunID, ep.Episode, s.Step, s.Action, s.Reward, done, s.Cells); err != nil {
			return fmt.Errorf("insert step %d/%d: %w", ep.Episode, s.Step, err)
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair in store metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM store_meta WHERE key = ?", key)
	return value, err
}
