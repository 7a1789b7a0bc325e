package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema embed.FS

type Postgres struct{ *pgxpool.Pool }

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Postgres{p}, nil
}

func (db *Postgres) Close() error                   { db.Pool.Close(); return nil }
func (db *Postgres) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func (db *Postgres) Migrate(ctx context.Context) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

// SaveGame inserts r. Replaying a key already stored overwrites it, so a
// rerun of a partially persisted sweep stays consistent.
func (db *Postgres) SaveGame(ctx context.Context, r *GameRecord) error {
	prepare(r)
	args, err := gameArgs(r)
	if err != nil {
		return err
	}
	ph := make([]string, len(args))
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	cols := strings.Fields(strings.ReplaceAll(gameColumns, ",", " "))
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "id" || c == "game_key" {
			continue
		}
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	q := `INSERT INTO games(` + gameColumns + `) VALUES (` + strings.Join(ph, ",") + `)
		ON CONFLICT (game_key) DO UPDATE SET ` + strings.Join(sets, ", ") + `
		RETURNING id`
	return db.QueryRow(ctx, q, args...).Scan(&r.ID)
}

func (db *Postgres) DoneKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.Query(ctx, `SELECT game_key FROM games`)
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

func (db *Postgres) ListGames(ctx context.Context, f Filter) ([]GameRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}
	if f.Model != "" {
		add("(p1_model = ? OR p2_model = ?)", f.Model)
	}
	if f.Family != "" {
		add("family = ?", f.Family)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	q := `SELECT ` + gameColumns + ` FROM games`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	if f.Offset > 0 {
		q += fmt.Sprintf(` OFFSET %d`, f.Offset)
	}
	rows, err := db.Query(ctx, q, args...)
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

func (db *Postgres) GetGame(ctx context.Context, id string) (GameRecord, error) {
	r, err := scanGame(db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (db *Postgres) LastGame(ctx context.Context) (GameRecord, error) {
	r, err := scanGame(db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games ORDER BY created_at DESC, id LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (db *Postgres) Rating(ctx context.Context, model string) (Rating, error) {
	r := Rating{Model: model}
	err := db.QueryRow(ctx, `
		SELECT elo, g_rating, g_rd, g_sigma, games, updated_at
		  FROM ratings WHERE model = $1
	`, model).Scan(&r.Elo, &r.GRating, &r.GRD, &r.GSigma, &r.Games, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultRating(model), nil
	}
	return r, err
}

func (db *Postgres) PutRating(ctx context.Context, r Rating) error {
	_, err := db.Exec(ctx, `
		INSERT INTO ratings(model, elo, g_rating, g_rd, g_sigma, games, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (model) DO UPDATE
		   SET elo = EXCLUDED.elo,
		       g_rating = EXCLUDED.g_rating,
		       g_rd = EXCLUDED.g_rd,
		       g_sigma = EXCLUDED.g_sigma,
		       games = EXCLUDED.games,
		       updated_at = now()
	`, r.Model, r.Elo, r.GRating, r.GRD, r.GSigma, r.Games)
	return err
}

func (db *Postgres) Ratings(ctx context.Context) ([]Rating, error) {
	rows, err := db.Query(ctx, `
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
