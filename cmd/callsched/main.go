package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/medremind/callsched/internal/api"
	"github.com/medremind/callsched/internal/cache"
	"github.com/medremind/callsched/internal/client"
	"github.com/medremind/callsched/internal/config"
	"github.com/medremind/callsched/internal/repo"
	"github.com/medremind/callsched/internal/scheduler"
	"github.com/medremind/callsched/internal/service"
	"github.com/medremind/callsched/internal/twilio"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("callsched starting (addr=%s, interval=%s, tz=%s, redis=%v)",
		cfg.Server.Address,
		cfg.Scheduler.Interval,
		cfg.Scheduler.ReferenceTZ,
		cfg.Redis.Enabled,
	)

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatalf("cannot open store: %v", err)
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	cancelPing()
	if err != nil {
		log.Fatalf("cannot reach store: %v", err)
	}

	if err := repo.RunMigrations(db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	medRepo := repo.NewPostgresMedicationRepo(db)

	var journal cache.CallJournal
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		journal = cache.NewRedisJournal(rdb, cfg.Redis.TTL)
	}

	directory := client.NewDirectoryClient(cfg.Directory.URL, cfg.Directory.CountryCode)
	calls := twilio.New(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)

	dispatcher := service.NewDispatcher(directory, calls, service.NewAccountant(medRepo))
	if journal != nil {
		dispatcher = dispatcher.WithJournal(journal)
	}

	runner := service.NewRunner(
		service.NewDetector(medRepo, cfg.Scheduler.ReferenceTZ),
		service.NewSweeper(medRepo, cfg.Scheduler.ReferenceTZ),
		dispatcher,
	)

	sched, err := scheduler.New(cfg.Scheduler.Interval, runner.RunOnce)
	if err != nil {
		log.Fatalf("cannot create scheduler: %v", err)
	}
	sched.Start()

	var resetCron *cron.Cron
	if cfg.Scheduler.DailyReset {
		resetCron = cron.New(cron.WithLocation(cfg.Scheduler.ReferenceTZ))
		if _, err := resetCron.AddFunc("0 0 * * *", func() {
			dailyReset(medRepo)
		}); err != nil {
			log.Fatalf("cannot schedule daily reset: %v", err)
		}
		resetCron.Start()
	}

	handler := api.NewHandler(sched, runner, medRepo, journal)
	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(handler)),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(server, sched, resetCron)
}

// dailyReset clears the taken flags and retry counters so the next
// morning starts from a clean slate.
func dailyReset(r repo.MedicationRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := r.ResetDaily(ctx)
	if err != nil {
		slog.Error("daily reset failed", "error", err)
		return
	}
	slog.Info("daily reset complete", "remindersReset", n)
}

func waitForShutdown(server *http.Server, sched *scheduler.Scheduler, resetCron *cron.Cron) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	sched.Stop()
	if resetCron != nil {
		<-resetCron.Stop().Done()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
