package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pranavjoshi100/safesteps-gps/internal/config"
	"github.com/pranavjoshi100/safesteps-gps/internal/db"
	"github.com/pranavjoshi100/safesteps-gps/internal/detector"
	"github.com/pranavjoshi100/safesteps-gps/internal/notify"
	"github.com/pranavjoshi100/safesteps-gps/internal/producer"
	"github.com/pranavjoshi100/safesteps-gps/internal/recorder"
	"github.com/pranavjoshi100/safesteps-gps/internal/route"
	"github.com/pranavjoshi100/safesteps-gps/internal/server"
	"github.com/pranavjoshi100/safesteps-gps/internal/settings"
	"github.com/pranavjoshi100/safesteps-gps/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	_ = godotenv.Load()
	cfg := deps.loadConfig()

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Printf("postgres connection failed: %v", err)
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		log.Printf("trackerd exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

// Run wires the pipeline, starts the HTTP server, and waits for
// termination. Every exit path tears down the detector ticker, the
// producer, and the async store writer.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	var q db.Querier
	if pg != nil {
		q = pg
	}
	recordStore := store.NewService(q)
	writer := store.NewAsyncWriter(recordStore, 64)

	sett := settings.NewService(rdb)
	notifier := notify.NewNotifier(rdb, sett.NotifyAllDay)

	source := producer.NewPushSource()
	prod := producer.NewProducer(source, time.Duration(cfg.SampleIntervalSec)*time.Second)

	var det *detector.Detector
	rec := recorder.NewRecorder(prod, writer, cfg.AppVersion, func() {
		if det != nil {
			det.Reset()
		}
	})
	det = detector.NewDetector(
		prod, sett, notifier,
		rec.Active,
		func() { rec.StartSession() },
		rec.StopSession,
		cfg.MovementThresholdM,
		time.Duration(cfg.CheckIntervalSec)*time.Second,
	)

	routes := route.NewService(recordStore, sett, cfg.HomeCity)

	prod.Start(ctx)
	det.Enable(ctx)

	srv := server.NewServer(cfg, source, prod, rec, routes, sett)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	var runErr error
	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	det.Disable()
	prod.Stop()
	writer.Close()

	if runErr != nil {
		return runErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.App.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
