package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coop-arena/server/engine"

	"github.com/google/uuid"
)

// gameColumns is shared by both SQL drivers; scanGame reads them in order.
const gameColumns = `id, game_key,
	p1_model, p1_params, p1_checkpoint, p1_steps,
	p2_model, p2_params, p2_checkpoint, p2_steps,
	family, noise, repetition, option_j, option_f, payoff, n_rounds,
	status, completed_rounds, score_p1, score_p2, moves, intended,
	unresponsive, attempts_p1, attempts_p2, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (GameRecord, error) {
	var (
		r                         GameRecord
		key, payoff, status, unre string
		moves, intended           string
	)
	err := row.Scan(&r.ID, &key,
		&r.P1.Model, &r.P1.Params, &r.P1.Checkpoint, &r.P1.Steps,
		&r.P2.Model, &r.P2.Params, &r.P2.Checkpoint, &r.P2.Steps,
		&r.Family, &r.Noise, &r.Rep, &r.OptionJ, &r.OptionF, &payoff, &r.Rounds,
		&status, &r.CompletedRounds, &r.ScoreP1, &r.ScoreP2, &moves, &intended,
		&unre, &r.AttemptsP1, &r.AttemptsP2, &r.CreatedAt,
	)
	if err != nil {
		return r, err
	}
	r.Status = engine.Status(status)
	r.Unresponsive = engine.Seat(unre)
	if r.Payoff, err = decodePayoff(payoff); err != nil {
		return r, err
	}
	if r.Moves, err = decodeMoves(moves); err != nil {
		return r, err
	}
	if r.Intended, err = decodeMoves(intended); err != nil {
		return r, err
	}
	return r, nil
}

// gameArgs matches gameColumns.
func gameArgs(r *GameRecord) ([]any, error) {
	payoff, err := encodePayoff(r.Payoff)
	if err != nil {
		return nil, err
	}
	return []any{r.ID, r.Key(),
		r.P1.Model, r.P1.Params, r.P1.Checkpoint, r.P1.Steps,
		r.P2.Model, r.P2.Params, r.P2.Checkpoint, r.P2.Steps,
		r.Family, r.Noise, r.Rep, r.OptionJ, r.OptionF, payoff, r.Rounds,
		string(r.Status), r.CompletedRounds, r.ScoreP1, r.ScoreP2,
		encodeMoves(r.Moves), encodeMoves(r.Intended),
		string(r.Unresponsive), r.AttemptsP1, r.AttemptsP2, r.CreatedAt,
	}, nil
}

// prepare fills generated fields before insert.
func prepare(r *GameRecord) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
}

func encodePayoff(pm engine.PayoffMatrix) (string, error) {
	b, err := json.Marshal(pm.Rows())
	return string(b), err
}

func decodePayoff(s string) (engine.PayoffMatrix, error) {
	var rows [][][]int
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		return engine.PayoffMatrix{}, fmt.Errorf("decode payoff: %w", err)
	}
	return engine.ParsePayoffMatrix(rows)
}

// encodeMoves writes "JF,FF,..." (player 1 code then player 2 code).
func encodeMoves(h engine.History) string {
	parts := make([]string, len(h))
	for i, r := range h {
		parts[i] = r.P1.Code() + r.P2.Code()
	}
	return strings.Join(parts, ",")
}

func decodeMoves(s string) (engine.History, error) {
	if s == "" {
		return engine.History{}, nil
	}
	parts := strings.Split(s, ",")
	h := make(engine.History, 0, len(parts))
	for _, p := range parts {
		if len(p) != 2 {
			return nil, fmt.Errorf("decode moves: bad round %q", p)
		}
		m1, err := engine.ParseMove(p[:1])
		if err != nil {
			return nil, err
		}
		m2, err := engine.ParseMove(p[1:])
		if err != nil {
			return nil, err
		}
		h = append(h, engine.Round{P1: m1, P2: m2})
	}
	return h, nil
}
