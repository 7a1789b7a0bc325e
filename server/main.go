package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"coop-arena/server/agent"
	"coop-arena/server/analysis"
	"coop-arena/server/config"
	"coop-arena/server/engine"
	"coop-arena/server/llm"
	"coop-arena/server/logging"
	"coop-arena/server/match"
	"coop-arena/server/store"
	"coop-arena/server/sweep"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

//
// ===== pretty printing =====
//

var useColor bool

const (
	colReset  = "\033[0m"
	colBold   = "\033[1m"
	colDim    = "\033[2m"
	colGreen  = "\033[32m"
	colRed    = "\033[31m"
	colYellow = "\033[33m"
	colBlue   = "\033[34m"
	colMag    = "\033[35m"
	colCyan   = "\033[36m"
)

func c(code, s string) string {
	if !useColor {
		return s
	}
	return code + s + colReset
}
func bold(s string) string { return c(colBold, s) }
func dim(s string) string  { return c(colDim, s) }
func good(s string) string { return c(colGreen, s) }
func warn(s string) string { return c(colYellow, s) }
func bad(s string) string  { return c(colRed, s) }
func cyan(s string) string { return c(colCyan, s) }
func mag(s string) string  { return c(colMag, s) }
func blue(s string) string { return c(colBlue, s) }
func seatTag(seat engine.Seat) string {
	if seat == engine.P1 {
		return cyan("P1")
	}
	return warn("P2")
}
func moveTag(m engine.Move, cfg engine.Config) string {
	if m == engine.Cooperate {
		return good(m.Label(cfg.OptionJ, cfg.OptionF))
	}
	return bad(m.Label(cfg.OptionJ, cfg.OptionF))
}
func modelShort(m string) string {
	m = strings.TrimSpace(m)
	if len(m) <= 36 {
		return m
	}
	return m[:36]
}
func section(title string) { fmt.Printf("\n%s %s %s\n", dim("──"), bold(title), dim("──")) }
func sub(title string)     { fmt.Printf("%s %s\n", dim("•"), bold(title)) }

//
// ===== bootstrap =====
//

// Tries: LLM_API_KEY_FILE, ./secrets/llm_api_key.txt, ./server/llm_api_key.txt,
// ./llm_api_key.txt and /run/secrets/llm_api_key.
func loadAPIKeyFromSecret() {
	if os.Getenv("LLM_API_KEY") != "" || os.Getenv("OPENAI_API_KEY") != "" || os.Getenv("OPENROUTER_API_KEY") != "" {
		return
	}
	var candidates []string
	if p := os.Getenv("LLM_API_KEY_FILE"); strings.TrimSpace(p) != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates,
		"./secrets/llm_api_key.txt",
		"./server/llm_api_key.txt",
		"./llm_api_key.txt",
		"/run/secrets/llm_api_key",
	)
	for _, path := range candidates {
		if b, err := os.ReadFile(path); err == nil {
			key := strings.TrimSpace(string(b))
			if key != "" {
				os.Setenv("LLM_API_KEY", key)
				return
			}
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

type flags struct {
	migrate, sweep, duel, summary, prefetch bool
	exportDir                               string
	plan                                    string
}

func parseFlags(args []string, exportDefault string) flags {
	var f flags
	for i := 0; i < len(args); i++ {
		a := args[i]
		val := func() string {
			if k, v, ok := strings.Cut(a, "="); ok && k != "" {
				return v
			}
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				i++
				return args[i]
			}
			return ""
		}
		name, _, _ := strings.Cut(a, "=")
		switch name {
		case "--migrate":
			f.migrate = true
		case "--sweep":
			f.sweep = true
		case "--duel":
			f.duel = true
		case "--summary":
			f.summary = true
		case "--prefetch":
			f.prefetch = true
		case "--export-csv":
			f.exportDir = val()
			if f.exportDir == "" {
				f.exportDir = exportDefault
			}
		case "--plan":
			f.plan = val()
		}
	}
	return f
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	_ = godotenv.Load()
	loadAPIKeyFromSecret()

	useColor = (os.Getenv("NO_COLOR") == "") && (strings.TrimSpace(os.Getenv("USE_COLOR")) != "0")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	fl := parseFlags(os.Args[1:], cfg.ExportDir)
	if fl.plan != "" {
		cfg.SweepFile = fl.plan
	}

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchSignals(cancel)
	go watchStop(ctx, cancel, atoiDef(os.Getenv("MAX_SECONDS"), 0), os.Getenv("STOP_FILE"))

	logger.Info("opening store", zap.String("driver", cfg.DBDriver), zap.String("dsn", cfg.RedactedDSN()))
	st, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	if cfg.AutoMigrate || fl.migrate {
		if err := st.Migrate(ctx); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		logger.Info("migrated")
	}
	if fl.migrate {
		return
	}

	switch {
	case fl.exportDir != "":
		n, err := store.Export(ctx, st, fl.exportDir)
		if err != nil {
			logger.Fatal("export", zap.Error(err))
		}
		logger.Info("exported", zap.Int("games", n), zap.String("dir", fl.exportDir))
	case fl.summary:
		if err := printSummary(ctx, st); err != nil {
			logger.Fatal("summary", zap.Error(err))
		}
	case fl.prefetch, fl.sweep:
		runner, err := newRunner(cfg, st, logger)
		if err != nil {
			logger.Fatal("plan", zap.Error(err))
		}
		if fl.prefetch {
			n, err := runner.Prefetch(ctx)
			if err != nil {
				logger.Fatal("prefetch", zap.Error(err))
			}
			logger.Info("prefetched", zap.Int("models", n))
		}
		if fl.sweep {
			runSweep(ctx, runner, logger)
		}
	case fl.duel:
		if err := runDuel(ctx, cfg, st, logger); err != nil {
			logger.Fatal("duel", zap.Error(err))
		}
	default:
		serve(ctx, cfg, st, logger)
	}
}

func watchSignals(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	cancel()
}

// watchStop cancels ctx once maxSeconds pass or stopFile appears.
func watchStop(ctx context.Context, cancel context.CancelFunc, maxSeconds int, stopFile string) {
	if maxSeconds <= 0 && stopFile == "" {
		return
	}
	var deadline time.Time
	if maxSeconds > 0 {
		deadline = time.Now().Add(time.Duration(maxSeconds) * time.Second)
	}
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if shouldStop(deadline, stopFile) {
			cancel()
			return
		}
	}
}

func shouldStop(deadline time.Time, stopFile string) bool {
	if !deadline.IsZero() && time.Now().After(deadline) {
		return true
	}
	if stopFile != "" {
		if _, err := os.Stat(stopFile); err == nil {
			return true
		}
	}
	return false
}

//
// ===== modes =====
//

func newRunner(cfg *config.Config, st store.Store, logger *zap.Logger) (*sweep.Runner, error) {
	plan, err := sweep.LoadPlan(cfg.SweepFile)
	if err != nil {
		return nil, err
	}
	return &sweep.Runner{
		Plan:  plan,
		Store: st,
		NewGenerator: func(p store.Player) (agent.Generator, error) {
			return llm.New(cfg.LLM, llm.ModelTag(p.Model, p.Checkpoint), logger)
		},
		Workers:     cfg.SweepWorkers,
		StrictStore: cfg.SweepStrictStore,
		Seed:        cfg.Seed,
		Rating:      cfg.Rating(),
		Log:         logger,
	}, nil
}

func runSweep(ctx context.Context, runner *sweep.Runner, logger *zap.Logger) {
	section("SWEEP")
	fmt.Println(dim("Ctrl+C → stop after the games in flight; finished games are kept."))
	var n atomic.Int64
	runner.OnGame = func(g store.GameRecord) {
		status := good(string(g.Status))
		if g.Status != engine.Completed {
			status = bad(string(g.Status))
		}
		fmt.Printf("%s #%d %s | %s | noise=%v → %s %d:%d\n",
			dim("▶"), n.Add(1), modelShort(g.P1.Tag()), g.Family, g.Noise, status, g.ScoreP1, g.ScoreP2)
	}
	rep, err := runner.Run(ctx)
	fmt.Printf("\n%s planned:%d skipped:%d completed:%d aborted:%d persist_failed:%d\n",
		bold("SWEEP →"), rep.Planned, rep.Skipped, rep.Completed, rep.Aborted, rep.PersistFailed)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Println(warn("Stopped early; run --sweep again to resume."))
	case err != nil:
		logger.Fatal("sweep", zap.Error(err))
	}
}

// runDuel plays one interactive game between DUEL_MODEL_A and DUEL_MODEL_B
// with a round-by-round transcript. The game is stored and rated like a
// sweep game.
func runDuel(ctx context.Context, cfg *config.Config, st store.Store, logger *zap.Logger) error {
	section("DUEL")
	base, err := sweep.LoadPlan(cfg.SweepFile)
	if err != nil {
		return err
	}
	a := strings.TrimSpace(getenv("DUEL_MODEL_A", ""))
	b := strings.TrimSpace(getenv("DUEL_MODEL_B", a))
	if a == "" {
		return errors.New("DUEL_MODEL_A is empty")
	}
	family := getenv("DUEL_FAMILY", base.Families[0].Name)
	var fam *sweep.Family
	for i := range base.Families {
		if base.Families[i].Name == family {
			fam = &base.Families[i]
		}
	}
	if fam == nil {
		return fmt.Errorf("unknown DUEL_FAMILY %q", family)
	}
	noise, err := strconv.ParseFloat(getenv("DUEL_NOISE", "0"), 64)
	if err != nil {
		return fmt.Errorf("DUEL_NOISE: %w", err)
	}

	plan := base
	plan.Models = []sweep.Model{{Name: a}}
	plan.Opponents = sweep.OpponentsSelf
	if b != a {
		plan.Models = append(plan.Models, sweep.Model{Name: b})
		plan.Opponents = sweep.OpponentsMatrix
	}
	plan.Checkpoints = nil
	plan.Families = []sweep.Family{*fam}
	plan.Noise = []float64{noise}
	plan.Repetitions = 1
	plan.Parallel = plan.Parallel || asBool(os.Getenv("DUEL_PARALLEL"))
	if err := plan.Validate(); err != nil {
		return err
	}

	runner, err := newRunner(cfg, st, logger)
	if err != nil {
		return err
	}
	runner.Plan = plan
	runner.Workers = 1
	runner.Replay = true

	pm := fam.Matrix()
	fmt.Printf("%s %s vs %s | %s | rounds=%d noise=%v\n",
		dim("▶"), cyan(modelShort(a)), warn(modelShort(b)), bold(family), plan.Rounds, noise)
	for _, m1 := range []engine.Move{engine.Cooperate, engine.Defect} {
		for _, m2 := range []engine.Move{engine.Cooperate, engine.Defect} {
			cell := pm.Cell(m1, m2)
			fmt.Printf("  %s / %s → %d:%d\n",
				m1.Label(plan.OptionJ, plan.OptionF), m2.Label(plan.OptionJ, plan.OptionF), cell.P1, cell.P2)
		}
	}

	runner.OnRound = func(j sweep.Job, rl match.RoundLog) {
		sub(fmt.Sprintf("Round %d/%d", rl.Round, j.Config.Rounds))
		for _, s := range []engine.Seat{engine.P1, engine.P2} {
			res, intended, played := rl.P1, rl.Intended.P1, rl.Played.P1
			if s == engine.P2 {
				res, intended, played = rl.P2, rl.Intended.P2, rl.Played.P2
			}
			line := fmt.Sprintf("  %s %s", seatTag(s), moveTag(played, j.Config))
			if intended != played {
				line += " " + mag("(noise flipped "+intended.Label(j.Config.OptionJ, j.Config.OptionF)+")")
			}
			if res.Attempts > 1 {
				line += " " + dim(fmt.Sprintf("after %d attempts", res.Attempts))
			}
			fmt.Println(line)
		}
		fmt.Printf("  %s %d:%d %s\n", dim("score"), rl.Scores[0], rl.Scores[1], dim(rl.Elapsed.Round(time.Millisecond).String()))
	}
	runner.OnGame = func(g store.GameRecord) {
		fmt.Println(dim(strings.Repeat("—", 36)))
		if g.Status != engine.Completed {
			fmt.Printf("%s %s stopped answering after %d rounds\n", bad("ABORTED →"), seatTag(g.Unresponsive), g.CompletedRounds)
		}
		fmt.Printf("%s P1:%d P2:%d | efficiency %.2f | attempts %d/%d\n",
			bold("RESULT →"), g.ScoreP1, g.ScoreP2, analysis.Efficiency(g), g.AttemptsP1, g.AttemptsP2)
	}
	_, err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Println(bad("Duel aborted by user."))
		return nil
	}
	if err != nil {
		return err
	}
	if a != b {
		for _, m := range []string{a, b} {
			r, err := st.Rating(ctx, m)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s Elo=%.1f Glicko=%.1f/%.0f σ=%.3f\n",
				mag("Rating →"), modelShort(m), r.Elo, r.GRating, r.GRD, r.GSigma)
		}
	}
	return nil
}

func printSummary(ctx context.Context, st store.Store) error {
	games, err := st.ListGames(ctx, store.Filter{})
	if err != nil {
		return err
	}
	section("SUMMARY")
	if len(games) == 0 {
		fmt.Println(dim("no games yet"))
		return nil
	}
	for _, s := range analysis.Summarize(games, analysis.Options{}) {
		fmt.Printf("%s %s | %s | noise=%v\n", dim("•"), bold(modelShort(s.Model)), s.Family, s.Noise)
		fmt.Printf("    games:%d aborted:%s efficiency:%s [%.2f, %.2f] cooperation:%.2f [%.2f, %.2f] best-response:%.2f\n",
			s.Games, warn(fmt.Sprintf("%.0f%%", 100*s.AbortRate)),
			blue(fmt.Sprintf("%.3f", s.Efficiency)), s.EfficiencyCI[0], s.EfficiencyCI[1],
			s.Cooperation, s.CooperationCI[0], s.CooperationCI[1], s.Accuracy)
	}
	ratings, err := st.Ratings(ctx)
	if err != nil {
		return err
	}
	if len(ratings) > 0 {
		section("RATINGS")
		for _, r := range ratings {
			fmt.Printf("  %-36s Elo=%7.1f  Glicko=%7.1f/%3.0f  games=%d\n",
				modelShort(r.Model), r.Elo, r.GRating, r.GRD, r.Games)
		}
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, st store.Store, logger *zap.Logger) {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      Router(st, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	logger.Info("listening", zap.String("addr", "http://localhost:"+cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
}
