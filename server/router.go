package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"coop-arena/server/analysis"
	"coop-arena/server/engine"
	"coop-arena/server/judge"
	"coop-arena/server/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxPageSize = 500

// gameRow is a stored game plus its moves under their display labels.
type gameRow struct {
	store.GameRecord
	Labeled    [][2]string `json:"labeled_moves"`
	Efficiency float64     `json:"efficiency"`
}

func newGameRow(g store.GameRecord) gameRow {
	return gameRow{GameRecord: g, Labeled: g.LabelPairs(), Efficiency: analysis.Efficiency(g)}
}

func Router(st store.Store, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := withTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := st.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})

		// Games, newest first. Filters: model (either seat), family, status,
		// limit, offset.
		r.Get("/games", func(w http.ResponseWriter, r *http.Request) {
			f, err := gameFilter(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if f.Limit <= 0 || f.Limit > maxPageSize {
				f.Limit = 100
			}
			games, err := st.ListGames(r.Context(), f)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			out := make([]gameRow, 0, len(games))
			for _, g := range games {
				out = append(out, newGameRow(g))
			}
			writeJSON(w, http.StatusOK, map[string]any{"rows": out})
		})

		r.Get("/games/last", func(w http.ResponseWriter, r *http.Request) {
			g, err := st.LastGame(r.Context())
			writeGame(w, g, err)
		})

		r.Get("/games/{id}", func(w http.ResponseWriter, r *http.Request) {
			g, err := st.GetGame(r.Context(), chi.URLParam(r, "id"))
			writeGame(w, g, err)
		})

		// Per model/family/noise aggregates over every matching game.
		r.Get("/summary", func(w http.ResponseWriter, r *http.Request) {
			f, err := gameFilter(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.Limit, f.Offset = 0, 0
			games, err := st.ListGames(r.Context(), f)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"rows": analysis.Summarize(games, analysis.Options{})})
		})

		r.Get("/ratings", func(w http.ResponseWriter, r *http.Request) {
			rows, err := st.Ratings(r.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if rows == nil {
				rows = []store.Rating{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
		})
	})

	return r
}

func gameFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Model:  q.Get("model"),
		Family: q.Get("family"),
		Status: engine.Status(q.Get("status")),
	}
	switch f.Status {
	case "", engine.Completed, engine.Aborted:
	default:
		return f, errors.New("status must be completed or aborted")
	}
	var err error
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, errors.New("bad limit")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			return f, errors.New("bad offset")
		}
	}
	return f, nil
}

func writeGame(w http.ResponseWriter, g store.GameRecord, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "no such game", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	intended := g.Intended
	if len(intended) == 0 {
		intended = g.Moves
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game":  newGameRow(g),
		"judge": judge.Evaluate(g.Payoff, intended, g.Moves),
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
