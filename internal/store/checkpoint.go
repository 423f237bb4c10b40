package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/agentlab/internal/workflow"
)

// CheckpointStore records workflow snapshots, one row per run.
type CheckpointStore struct {
	DB *sql.DB
}

func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{DB: db}
}

var _ workflow.Checkpointer = (*CheckpointStore)(nil)

const runColumns = `id, agent, chat_id, task, steps, cursor, result, state, error, created_at, updated_at`

// Save inserts or replaces the checkpoint for snap.RunID.
func (c *CheckpointStore) Save(ctx context.Context, snap workflow.Snapshot) error {
	steps, err := json.Marshal(snap.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	if snap.Steps == nil {
		steps = []byte("[]")
	}
	created, updated := snap.CreatedAt, snap.UpdatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = created
	}

	query := `INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent = excluded.agent,
			chat_id = excluded.chat_id,
			task = excluded.task,
			steps = excluded.steps,
			cursor = excluded.cursor,
			result = excluded.result,
			state = excluded.state,
			error = excluded.error,
			updated_at = excluded.updated_at`
	_, err = c.DB.ExecContext(ctx, query,
		snap.RunID, snap.Agent, snap.ChatID, snap.Task, string(steps), snap.Cursor,
		snap.Result, string(snap.State), snap.Error, created.UnixNano(), updated.UnixNano())
	return err
}

// Load returns the checkpoint of one run, or ErrNotFound.
func (c *CheckpointStore) Load(ctx context.Context, runID string) (workflow.Snapshot, error) {
	row := c.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	snap, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Snapshot{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return snap, err
}

// List returns the most recently updated runs first.
func (c *CheckpointStore) List(ctx context.Context, limit int) ([]workflow.Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	return c.query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY updated_at DESC LIMIT ?`, limit)
}

// Unfinished returns runs that stopped before reaching a terminal state,
// oldest first.
func (c *CheckpointStore) Unfinished(ctx context.Context) ([]workflow.Snapshot, error) {
	return c.query(ctx, `SELECT `+runColumns+` FROM runs WHERE state IN (?, ?) ORDER BY created_at ASC`,
		string(workflow.StatePlanning), string(workflow.StateExecuting))
}

func (c *CheckpointStore) query(ctx context.Context, query string, args ...any) ([]workflow.Snapshot, error) {
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []workflow.Snapshot
	for rows.Next() {
		snap, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (workflow.Snapshot, error) {
	var (
		snap             workflow.Snapshot
		steps, state     string
		created, updated int64
	)
	err := s.Scan(&snap.RunID, &snap.Agent, &snap.ChatID, &snap.Task, &steps, &snap.Cursor,
		&snap.Result, &state, &snap.Error, &created, &updated)
	if err != nil {
		return workflow.Snapshot{}, err
	}
	if err := json.Unmarshal([]byte(steps), &snap.Steps); err != nil {
		return workflow.Snapshot{}, fmt.Errorf("decode steps of run %s: %w", snap.RunID, err)
	}
	snap.State = workflow.State(state)
	snap.CreatedAt = time.Unix(0, created)
	snap.UpdatedAt = time.Unix(0, updated)
	return snap, nil
}
