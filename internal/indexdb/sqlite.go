// Package indexdb keeps a queryable sqlite index of batch runs and the
// episodes they finished. The JSONL and trajectory logs remain the primary
// record; the index is for quick lookups across runs.
package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"swarmrl/internal/batch"
	"swarmrl/internal/env"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("indexdb: closed")

// Run describes one bench or eval invocation.
type Run struct {
	ID         string
	Task       string
	Seed       uint64
	NumEnvs    int
	Steps      int
	Workers    int
	ConfigJSON string
	StartedAt  time.Time
}

// EpisodeRow is a stored episode.
type EpisodeRow struct {
	RunID  string
	Repeat int
	batch.Episode
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Int64
}

type reqKind int

const (
	reqEpisode reqKind = iota + 1
	reqFlush
)

type req struct {
	kind reqKind

	episode EpisodeRow
	done    chan error
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			seed INTEGER NOT NULL,
			num_envs INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			workers INTEGER NOT NULL,
			config_json TEXT NOT NULL,
			started_at TEXT NOT NULL,
			elapsed_ms INTEGER,
			steps_per_sec REAL
		);`,
		`CREATE TABLE IF NOT EXISTS episodes (
			run_id TEXT NOT NULL REFERENCES runs(id),
			repeat_idx INTEGER NOT NULL,
			iteration INTEGER NOT NULL,
			replica INTEGER NOT NULL,
			episode_return REAL NOT NULL,
			steps INTEGER NOT NULL,
			final_distance REAL NOT NULL,
			end_reason TEXT NOT NULL,
			PRIMARY KEY (run_id, repeat_idx, iteration, replica)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_run_end ON episodes(run_id, end_reason);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun inserts the run row synchronously so episodes can reference it.
func (s *SQLiteIndex) RecordRun(ctx context.Context, r Run) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(id,task,seed,num_envs,steps,workers,config_json,started_at) VALUES(?,?,?,?,?,?,?,?)`,
		r.ID, r.Task, int64(r.Seed), r.NumEnvs, r.Steps, r.Workers, r.ConfigJSON,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// FinishRun stores the wall time and throughput of a completed run.
func (s *SQLiteIndex) FinishRun(ctx context.Context, id string, elapsed time.Duration, stepsPerSec float64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET elapsed_ms=?, steps_per_sec=? WHERE id=?`,
		elapsed.Milliseconds(), stepsPerSec, id,
	)
	return err
}

// RecordEpisode queues an episode for the writer goroutine. When the queue is
// full the episode is dropped and counted.
func (s *SQLiteIndex) RecordEpisode(runID string, repeat int, ep batch.Episode) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqEpisode, episode: EpisodeRow{RunID: runID, Repeat: repeat, Episode: ep}}:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many episodes were discarded because the writer fell
// behind.
func (s *SQLiteIndex) Dropped() int64 { return s.dropped.Load() }

// Flush blocks until every queued episode is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	done := make(chan error, 1)
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Episodes returns the stored episodes of a run ordered by repeat, iteration
// and replica.
func (s *SQLiteIndex) Episodes(ctx context.Context, runID string) ([]EpisodeRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT repeat_idx, iteration, replica, episode_return, steps, final_distance, end_reason
		 FROM episodes WHERE run_id=? ORDER BY repeat_idx, iteration, replica`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpisodeRow
	for rows.Next() {
		row := EpisodeRow{RunID: runID}
		var end string
		if err := rows.Scan(&row.Repeat, &row.Iteration, &row.Replica, &row.Return, &row.Steps, &row.FinalDistance, &end); err != nil {
			return nil, err
		}
		row.End = parseEnd(end)
		out = append(out, row)
	}
	return out, rows.Err()
}

// EndCounts groups the episodes of a run by how they ended.
func (s *SQLiteIndex) EndCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT end_reason, COUNT(*) FROM episodes WHERE run_id=? GROUP BY end_reason`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEpisode, _ := s.db.Prepare(`INSERT OR REPLACE INTO episodes(run_id,repeat_idx,iteration,replica,episode_return,steps,final_distance,end_reason) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertEpisode != nil {
			_ = insertEpisode.Close()
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		lastErr     error
		lastCommit  = time.Now()
		commitEvery = 2000
		maxWait     = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			lastErr = err
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		switch r.kind {
		case reqEpisode:
			begin()
			if tx == nil || insertEpisode == nil {
				continue
			}
			e := r.episode
			if _, err := tx.Stmt(insertEpisode).Exec(
				e.RunID, e.Repeat, e.Iteration, e.Replica,
				e.Return, e.Steps, e.FinalDistance, e.End.String(),
			); err != nil {
				lastErr = err
				_ = tx.Rollback()
				tx = nil
				continue
			}
			opCount++
			if opCount >= commitEvery || time.Since(lastCommit) >= maxWait {
				commit()
			}
		case reqFlush:
			commit()
			r.done <- lastErr
			lastErr = nil
		}
	}
	commit()
}

func parseEnd(s string) env.EndReason {
	switch s {
	case env.EndTerminated.String():
		return env.EndTerminated
	case env.EndTruncated.String():
		return env.EndTruncated
	default:
		return env.EndNone
	}
}
