package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the single-file store for local sweeps.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error                   { return s.db.Close() }
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			game_key TEXT NOT NULL UNIQUE,
			p1_model TEXT NOT NULL,
			p1_params INTEGER NOT NULL DEFAULT 0,
			p1_checkpoint TEXT NOT NULL DEFAULT '',
			p1_steps INTEGER NOT NULL DEFAULT 0,
			p2_model TEXT NOT NULL,
			p2_params INTEGER NOT NULL DEFAULT 0,
			p2_checkpoint TEXT NOT NULL DEFAULT '',
			p2_steps INTEGER NOT NULL DEFAULT 0,
			family TEXT NOT NULL,
			noise REAL NOT NULL DEFAULT 0,
			repetition INTEGER NOT NULL DEFAULT 0,
			option_j TEXT NOT NULL,
			option_f TEXT NOT NULL,
			payoff TEXT NOT NULL,
			n_rounds INTEGER NOT NULL,
			status TEXT NOT NULL,
			completed_rounds INTEGER NOT NULL,
			score_p1 INTEGER NOT NULL,
			score_p2 INTEGER NOT NULL,
			moves TEXT NOT NULL DEFAULT '',
			intended TEXT NOT NULL DEFAULT '',
			unresponsive TEXT NOT NULL DEFAULT '',
			attempts_p1 INTEGER NOT NULL DEFAULT 0,
			attempts_p2 INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_games_created ON games(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_games_family ON games(family)`,
		`CREATE TABLE IF NOT EXISTS ratings (
			model TEXT PRIMARY KEY,
			elo REAL NOT NULL,
			g_rating REAL NOT NULL,
			g_rd REAL NOT NULL,
			g_sigma REAL NOT NULL,
			games INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLite) SaveGame(ctx context.Context, r *GameRecord) error {
	prepare(r)
	args, err := gameArgs(r)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM games WHERE game_key = ?`, r.Key()).Scan(&existing)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, existing); err != nil {
			return err
		}
		r.ID = existing
		args[0] = existing
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}
	q := `INSERT INTO games (` + gameColumns + `) VALUES (?` + strings.Repeat(",?", len(args)-1) + `)`
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) DoneKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game_key FROM games`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]struct{}{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out[k] = struct{}{}
	}
	return out, rows.Err()
}

func (s *SQLite) ListGames(ctx context.Context, f Filter) ([]GameRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Model != "" {
		where = append(where, "(p1_model = ? OR p2_model = ?)")
		args = append(args, f.Model, f.Model)
	}
	if f.Family != "" {
		where = append(where, "family = ?")
		args = append(args, f.Family)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + gameColumns + ` FROM games`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		q += fmt.Sprintf(` LIMIT %d OFFSET %d`, limit, f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GameRecord
	for rows.Next() {
		r, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) GetGame(ctx context.Context, id string) (GameRecord, error) {
	r, err := scanGame(s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (s *SQLite) LastGame(ctx context.Context) (GameRecord, error) {
	r, err := scanGame(s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games ORDER BY created_at DESC, id LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (s *SQLite) Rating(ctx context.Context, model string) (Rating, error) {
	r := Rating{Model: model}
	err := s.db.QueryRowContext(ctx, `
		SELECT elo, g_rating, g_rd, g_sigma, games, updated_at
		  FROM ratings WHERE model = ?`, model).
		Scan(&r.Elo, &r.GRating, &r.GRD, &r.GSigma, &r.Games, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultRating(model), nil
	}
	return r, err
}

func (s *SQLite) PutRating(ctx context.Context, r Rating) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ratings (model, elo, g_rating, g_rd, g_sigma, games, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model) DO UPDATE SET
			elo = excluded.elo,
			g_rating = excluded.g_rating,
			g_rd = excluded.g_rd,
			g_sigma = excluded.g_sigma,
			games = excluded.games,
			updated_at = excluded.updated_at`,
		r.Model, r.Elo, r.GRating, r.GRD, r.GSigma, r.Games, time.Now().UTC())
	return err
}

func (s *SQLite) Ratings(ctx context.Context) ([]Rating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model, elo, g_rating, g_rd, g_sigma, games, updated_at
		  FROM ratings ORDER BY g_rating DESC, model`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rating
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.Model, &r.Elo, &r.GRating, &r.GRD, &r.GSigma, &r.Games, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
