package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"coop-arena/server/engine"
)

// CSV keeps results as flat files in one directory: games.csv for completed
// games, failed_games.csv for aborted ones and ratings.csv. All rows are
// loaded on open and appended on save.
type CSV struct {
	dir string

	mu      sync.Mutex
	games   []GameRecord
	byKey   map[string]int
	ratings map[string]Rating
}

const (
	gamesFile   = "games.csv"
	failedFile  = "failed_games.csv"
	ratingsFile = "ratings.csv"
)

var csvHeader = []string{
	"id", "p1_model", "p1_params", "p1_checkpoint", "p1_training_steps",
	"p2_model", "p2_params", "p2_checkpoint", "p2_training_steps",
	"family", "noise", "repetition", "option_j", "option_f", "payoff_matrix",
	"n_rounds", "status", "completed_rounds", "score_p1", "score_p2",
	"moves", "intended", "unresponsive", "attempts_p1", "attempts_p2", "created_at",
}

var ratingsHeader = []string{"model", "elo", "g_rating", "g_rd", "g_sigma", "games", "updated_at"}

func OpenCSV(dir string) (*CSV, error) {
	if dir == "" {
		return nil, errors.New("csv store: directory required")
	}
	return &CSV{dir: dir, byKey: map[string]int{}, ratings: map[string]Rating{}}, nil
}

func (s *CSV) Close() error                   { return nil }
func (s *CSV) Ping(ctx context.Context) error { _, err := os.Stat(s.dir); return err }

// Migrate creates the directory and loads whatever is already there.
func (s *CSV) Migrate(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games = nil
	s.byKey = map[string]int{}
	for _, name := range []string{gamesFile, failedFile} {
		rows, err := readCSV(filepath.Join(s.dir, name))
		if err != nil {
			return err
		}
		for _, row := range rows {
			r, err := gameFromRow(row)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			s.index(r)
		}
	}
	rows, err := readCSV(filepath.Join(s.dir, ratingsFile))
	if err != nil {
		return err
	}
	for _, row := range rows {
		r, err := ratingFromRow(row)
		if err != nil {
			return fmt.Errorf("%s: %w", ratingsFile, err)
		}
		s.ratings[r.Model] = r
	}
	return nil
}

func (s *CSV) index(r GameRecord) {
	if i, ok := s.byKey[r.Key()]; ok {
		if !r.CreatedAt.Before(s.games[i].CreatedAt) {
			s.games[i] = r
		}
		return
	}
	s.byKey[r.Key()] = len(s.games)
	s.games = append(s.games, r)
}

func (s *CSV) SaveGame(ctx context.Context, r *GameRecord) error {
	prepare(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byKey[r.Key()]; ok {
		r.ID = s.games[i].ID
	}
	name := gamesFile
	if r.Status != engine.Completed {
		name = failedFile
	}
	row, err := gameToRow(*r)
	if err != nil {
		return err
	}
	if err := appendCSV(filepath.Join(s.dir, name), csvHeader, row); err != nil {
		return err
	}
	s.index(*r)
	return nil
}

func (s *CSV) DoneKeys(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.byKey))
	for k := range s.byKey {
		out[k] = struct{}{}
	}
	return out, nil
}

func (s *CSV) ListGames(ctx context.Context, f Filter) ([]GameRecord, error) {
	s.mu.Lock()
	all := make([]GameRecord, 0, len(s.games))
	for _, r := range s.games {
		if f.match(r) {
			all = append(all, r)
		}
	}
	s.mu.Unlock()
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(all) {
			return nil, nil
		}
		all = all[f.Offset:]
	}
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (s *CSV) GetGame(ctx context.Context, id string) (GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.games {
		if r.ID == id {
			return r, nil
		}
	}
	return GameRecord{}, ErrNotFound
}

func (s *CSV) LastGame(ctx context.Context) (GameRecord, error) {
	games, _ := s.ListGames(ctx, Filter{Limit: 1})
	if len(games) == 0 {
		return GameRecord{}, ErrNotFound
	}
	return games[0], nil
}

func (s *CSV) Rating(ctx context.Context, model string) (Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.ratings[model]; ok {
		return r, nil
	}
	return DefaultRating(model), nil
}

// PutRating rewrites ratings.csv; it is small.
func (s *CSV) PutRating(ctx context.Context, r Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.UpdatedAt = time.Now().UTC()
	s.ratings[r.Model] = r
	models := make([]string, 0, len(s.ratings))
	for m := range s.ratings {
		models = append(models, m)
	}
	sort.Strings(models)
	rows := [][]string{ratingsHeader}
	for _, m := range models {
		rows = append(rows, ratingToRow(s.ratings[m]))
	}
	return writeCSV(filepath.Join(s.dir, ratingsFile), rows)
}

func (s *CSV) Ratings(ctx context.Context) ([]Rating, error) {
	s.mu.Lock()
	out := make([]Rating, 0, len(s.ratings))
	for _, r := range s.ratings {
		out = append(out, r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].GRating != out[j].GRating {
			return out[i].GRating > out[j].GRating
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}

// Export writes every record from src into dir using the CSV layout.
func Export(ctx context.Context, src Store, dir string) (int, error) {
	dst, err := OpenCSV(dir)
	if err != nil {
		return 0, err
	}
	if err := dst.Migrate(ctx); err != nil {
		return 0, err
	}
	games, err := src.ListGames(ctx, Filter{})
	if err != nil {
		return 0, err
	}
	// Oldest first so the files read chronologically.
	for i := len(games) - 1; i >= 0; i-- {
		if err := dst.SaveGame(ctx, &games[i]); err != nil {
			return 0, err
		}
	}
	ratings, err := src.Ratings(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range ratings {
		if err := dst.PutRating(ctx, r); err != nil {
			return 0, err
		}
	}
	return len(games), nil
}

func gameToRow(r GameRecord) ([]string, error) {
	payoff, err := encodePayoff(r.Payoff)
	if err != nil {
		return nil, err
	}
	moves, err := json.Marshal(r.LabelPairs())
	if err != nil {
		return nil, err
	}
	return []string{
		r.ID, r.P1.Model, strconv.FormatInt(r.P1.Params, 10), r.P1.Checkpoint, strconv.Itoa(r.P1.Steps),
		r.P2.Model, strconv.FormatInt(r.P2.Params, 10), r.P2.Checkpoint, strconv.Itoa(r.P2.Steps),
		r.Family, strconv.FormatFloat(r.Noise, 'g', -1, 64), strconv.Itoa(r.Rep),
		r.OptionJ, r.OptionF, payoff,
		strconv.Itoa(r.Rounds), string(r.Status), strconv.Itoa(r.CompletedRounds),
		strconv.Itoa(r.ScoreP1), strconv.Itoa(r.ScoreP2),
		string(moves), encodeMoves(r.Intended), string(r.Unresponsive),
		strconv.Itoa(r.AttemptsP1), strconv.Itoa(r.AttemptsP2),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func gameFromRow(row []string) (GameRecord, error) {
	var r GameRecord
	if len(row) != len(csvHeader) {
		return r, fmt.Errorf("row has %d fields, want %d", len(row), len(csvHeader))
	}
	p := fieldParser{}
	r.ID = row[0]
	r.P1 = Player{Model: row[1], Params: p.int64(row[2]), Checkpoint: row[3], Steps: p.int(row[4])}
	r.P2 = Player{Model: row[5], Params: p.int64(row[6]), Checkpoint: row[7], Steps: p.int(row[8])}
	r.Family = row[9]
	r.Noise = p.float(row[10])
	r.Rep = p.int(row[11])
	r.OptionJ, r.OptionF = row[12], row[13]
	r.Rounds = p.int(row[15])
	r.Status = engine.Status(row[16])
	r.CompletedRounds = p.int(row[17])
	r.ScoreP1, r.ScoreP2 = p.int(row[18]), p.int(row[19])
	r.Unresponsive = engine.Seat(row[22])
	r.AttemptsP1, r.AttemptsP2 = p.int(row[23]), p.int(row[24])
	r.CreatedAt = p.time(row[25])
	if p.err != nil {
		return r, p.err
	}
	var err error
	if r.Payoff, err = decodePayoff(row[14]); err != nil {
		return r, err
	}
	if r.Moves, err = movesFromLabels(row[20], r.OptionJ, r.OptionF); err != nil {
		return r, err
	}
	if r.Intended, err = decodeMoves(row[21]); err != nil {
		return r, err
	}
	return r, nil
}

func movesFromLabels(s, optionJ, optionF string) (engine.History, error) {
	var pairs [][2]string
	if err := json.Unmarshal([]byte(s), &pairs); err != nil {
		return nil, fmt.Errorf("decode moves: %w", err)
	}
	toMove := func(label string) (engine.Move, error) {
		switch label {
		case optionJ:
			return engine.Cooperate, nil
		case optionF:
			return engine.Defect, nil
		}
		return engine.Cooperate, fmt.Errorf("decode moves: unknown label %q", label)
	}
	h := make(engine.History, 0, len(pairs))
	for _, pr := range pairs {
		m1, err := toMove(pr[0])
		if err != nil {
			return nil, err
		}
		m2, err := toMove(pr[1])
		if err != nil {
			return nil, err
		}
		h = append(h, engine.Round{P1: m1, P2: m2})
	}
	return h, nil
}

func ratingToRow(r Rating) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{r.Model, f(r.Elo), f(r.GRating), f(r.GRD), f(r.GSigma), strconv.Itoa(r.Games), r.UpdatedAt.UTC().Format(time.RFC3339Nano)}
}

func ratingFromRow(row []string) (Rating, error) {
	if len(row) != len(ratingsHeader) {
		return Rating{}, fmt.Errorf("row has %d fields, want %d", len(row), len(ratingsHeader))
	}
	p := fieldParser{}
	r := Rating{
		Model:     row[0],
		Elo:       p.float(row[1]),
		GRating:   p.float(row[2]),
		GRD:       p.float(row[3]),
		GSigma:    p.float(row[4]),
		Games:     p.int(row[5]),
		UpdatedAt: p.time(row[6]),
	}
	return r, p.err
}

// fieldParser keeps the first conversion error.
type fieldParser struct{ err error }

func (p *fieldParser) int(s string) int {
	v, err := strconv.Atoi(s)
	p.keep(err)
	return v
}

func (p *fieldParser) int64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	p.keep(err)
	return v
}

func (p *fieldParser) float(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	p.keep(err)
	return v
}

func (p *fieldParser) time(s string) time.Time {
	v, err := time.Parse(time.RFC3339Nano, s)
	p.keep(err)
	return v
}

func (p *fieldParser) keep(err error) {
	if p.err == nil && err != nil {
		p.err = err
	}
}

// readCSV returns data rows without the header; a missing file is empty.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	var rows [][]string
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			continue
		}
		rows = append(rows, row)
	}
}

func appendCSV(path string, header, row []string) error {
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if errors.Is(statErr, os.ErrNotExist) {
		_ = w.Write(header)
	}
	_ = w.Write(row)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(path string, rows [][]string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
