// Package store persists finished games and per-model ratings.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"coop-arena/server/engine"
)

var ErrNotFound = errors.New("not found")

// Player identifies one side of a game: a model and an optional training
// checkpoint of it.
type Player struct {
	Model      string `json:"model"`
	Params     int64  `json:"params,omitempty"`
	Checkpoint string `json:"checkpoint,omitempty"`
	Steps      int    `json:"training_steps,omitempty"`
}

// Tag is the rating identity, "model" or "model:checkpoint".
func (p Player) Tag() string {
	if p.Checkpoint == "" {
		return p.Model
	}
	return p.Model + ":" + p.Checkpoint
}

// GameRecord is one finished game, completed or aborted.
type GameRecord struct {
	ID              string              `json:"id"`
	P1              Player              `json:"p1"`
	P2              Player              `json:"p2"`
	Family          string              `json:"family"`
	Noise           float64             `json:"noise"`
	Rep             int                 `json:"repetition"`
	OptionJ         string              `json:"option_j"`
	OptionF         string              `json:"option_f"`
	Payoff          engine.PayoffMatrix `json:"payoff_matrix"`
	Rounds          int                 `json:"n_rounds"`
	Status          engine.Status       `json:"status"`
	CompletedRounds int                 `json:"completed_rounds"`
	ScoreP1         int                 `json:"score_p1"`
	ScoreP2         int                 `json:"score_p2"`
	Moves           engine.History      `json:"moves"`
	Intended        engine.History      `json:"intended"`
	Unresponsive    engine.Seat         `json:"unresponsive,omitempty"`
	AttemptsP1      int                 `json:"attempts_p1"`
	AttemptsP2      int                 `json:"attempts_p2"`
	CreatedAt       time.Time           `json:"created_at"`
}

// Key identifies a planned game for resume purposes.
func (r GameRecord) Key() string {
	return GameKey(r.P1, r.P2, r.Family, r.Noise, r.Rep)
}

func GameKey(p1, p2 Player, family string, noise float64, rep int) string {
	return strings.Join([]string{
		p1.Tag(), p2.Tag(), family,
		strconv.FormatFloat(noise, 'g', -1, 64),
		strconv.Itoa(rep),
	}, "|")
}

// LabelPairs renders the played moves with their display labels.
func (r GameRecord) LabelPairs() [][2]string {
	out := make([][2]string, len(r.Moves))
	for i, rd := range r.Moves {
		out[i] = [2]string{rd.P1.Label(r.OptionJ, r.OptionF), rd.P2.Label(r.OptionJ, r.OptionF)}
	}
	return out
}

type Rating struct {
	Model     string    `json:"model"`
	Elo       float64   `json:"elo"`
	GRating   float64   `json:"g_rating"`
	GRD       float64   `json:"g_rd"`
	GSigma    float64   `json:"g_sigma"`
	Games     int       `json:"games"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultRating is what an unseen model starts from.
func DefaultRating(model string) Rating {
	return Rating{Model: model, Elo: 1500, GRating: 1500, GRD: 350, GSigma: 0.06}
}

type Filter struct {
	Model  string // either seat
	Family string
	Status engine.Status
	Limit  int
	Offset int
}

func (f Filter) match(r GameRecord) bool {
	if f.Model != "" && r.P1.Model != f.Model && r.P2.Model != f.Model {
		return false
	}
	if f.Family != "" && r.Family != f.Family {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

type Store interface {
	Migrate(ctx context.Context) error
	SaveGame(ctx context.Context, r *GameRecord) error
	// DoneKeys returns the Key of every stored game, completed or aborted.
	DoneKeys(ctx context.Context) (map[string]struct{}, error)
	// ListGames returns newest first.
	ListGames(ctx context.Context, f Filter) ([]GameRecord, error)
	GetGame(ctx context.Context, id string) (GameRecord, error)
	LastGame(ctx context.Context) (GameRecord, error)
	// Rating returns DefaultRating for unseen models.
	Rating(ctx context.Context, model string) (Rating, error)
	PutRating(ctx context.Context, r Rating) error
	Ratings(ctx context.Context) ([]Rating, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open picks a driver: "postgres" (dsn is a URL), "sqlite" (dsn is a file
// path or ":memory:") or "csv" (dsn is a directory).
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "postgres", "pg":
		return OpenPostgres(ctx, dsn)
	case "sqlite":
		return OpenSQLite(dsn)
	case "csv":
		return OpenCSV(dsn)
	}
	return nil, fmt.Errorf("unknown store driver %q (want postgres|sqlite|csv)", driver)
}
