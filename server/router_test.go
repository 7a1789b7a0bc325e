package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"coop-arena/server/engine"
	"coop-arena/server/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pd = engine.PayoffMatrix{
	{{3, 3}, {0, 5}},
	{{5, 0}, {1, 1}},
}

func seeded(t *testing.T) (store.Store, *store.GameRecord) {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	p := store.Player{Model: "pythia-160m-deduped", Checkpoint: "step23000"}
	moves := engine.History{
		{P1: engine.Cooperate, P2: engine.Defect},
		{P1: engine.Defect, P2: engine.Defect},
	}
	done := &store.GameRecord{
		P1: p, P2: p, Family: "PD", OptionJ: "Option J", OptionF: "Option F",
		Payoff: pd, Rounds: 2, Status: engine.Completed, CompletedRounds: 2,
		ScoreP1: 1, ScoreP2: 6, Moves: moves, Intended: moves,
	}
	require.NoError(t, st.SaveGame(ctx, done))
	aborted := &store.GameRecord{
		P1: p, P2: p, Family: "PD", Rep: 1, OptionJ: "Option J", OptionF: "Option F",
		Payoff: pd, Rounds: 2, Status: engine.Aborted, Unresponsive: engine.P2,
	}
	require.NoError(t, st.SaveGame(ctx, aborted))
	require.NoError(t, st.PutRating(ctx, store.DefaultRating("pythia-160m-deduped:step23000")))
	return st, done
}

func get(t *testing.T, h http.Handler, path string, into any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if into != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	st, _ := seeded(t)
	var body map[string]any
	assert.Equal(t, http.StatusOK, get(t, Router(st, zap.NewNop()), "/api/health", &body))
	assert.Equal(t, true, body["ok"])
}

func TestListGames(t *testing.T) {
	st, _ := seeded(t)
	h := Router(st, zap.NewNop())

	var body struct {
		Rows []struct {
			Status     string      `json:"status"`
			Labeled    [][2]string `json:"labeled_moves"`
			Efficiency float64     `json:"efficiency"`
		} `json:"rows"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/games", &body))
	assert.Len(t, body.Rows, 2)

	require.Equal(t, http.StatusOK, get(t, h, "/api/games?status=completed", &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, [][2]string{{"Option J", "Option F"}, {"Option F", "Option F"}}, body.Rows[0].Labeled)
	assert.InDelta(t, 7.0/12, body.Rows[0].Efficiency, 1e-9)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/games?status=pending", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/games?limit=-1", nil))
}

func TestGetGame(t *testing.T) {
	st, done := seeded(t)
	h := Router(st, zap.NewNop())

	var body struct {
		Game struct {
			ID      string `json:"id"`
			ScoreP2 int    `json:"score_p2"`
		} `json:"game"`
		Judge struct {
			P1 struct {
				Strategy string `json:"strategy"`
				Regret   int    `json:"regret"`
			} `json:"p1"`
		} `json:"judge"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/games/"+done.ID, &body))
	assert.Equal(t, done.ID, body.Game.ID)
	assert.Equal(t, 6, body.Game.ScoreP2)
	assert.Equal(t, "tit_for_tat", body.Judge.P1.Strategy)
	assert.Equal(t, 1, body.Judge.P1.Regret)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/games/nope", nil))
	assert.Equal(t, http.StatusOK, get(t, h, "/api/games/last", nil))
}

func TestSummaryAndRatings(t *testing.T) {
	st, _ := seeded(t)
	h := Router(st, zap.NewNop())

	var sum struct {
		Rows []struct {
			Model     string  `json:"model"`
			Games     int     `json:"games"`
			AbortRate float64 `json:"abort_rate"`
		} `json:"rows"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/summary", &sum))
	require.Len(t, sum.Rows, 1)
	assert.Equal(t, "pythia-160m-deduped:step23000", sum.Rows[0].Model)
	assert.Equal(t, 2, sum.Rows[0].Games)
	assert.InDelta(t, 0.5, sum.Rows[0].AbortRate, 1e-12)

	var ratings struct {
		Rows []store.Rating `json:"rows"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/ratings", &ratings))
	require.Len(t, ratings.Rows, 1)
	assert.Equal(t, 1500.0, ratings.Rows[0].Elo)
}

func TestMetricsEndpoint(t *testing.T) {
	st, _ := seeded(t)
	rec := httptest.NewRecorder()
	Router(st, zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestParseFlags(t *testing.T) {
	f := parseFlags([]string{"--sweep", "--plan", "grid.yaml", "--export-csv"}, "data")
	assert.True(t, f.sweep)
	assert.Equal(t, "grid.yaml", f.plan)
	assert.Equal(t, "data", f.exportDir)

	f = parseFlags([]string{"--export-csv=out", "--duel"}, "data")
	assert.Equal(t, "out", f.exportDir)
	assert.True(t, f.duel)
	assert.False(t, f.migrate)
}
