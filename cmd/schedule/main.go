package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/peakform/schedule/internal/calendar"
	"github.com/peakform/schedule/internal/rest"
	"github.com/peakform/schedule/pkg/config"
	"github.com/peakform/schedule/pkg/logger"
	"github.com/peakform/schedule/pkg/notifier"
	"github.com/peakform/schedule/pkg/pgstore"
	"github.com/peakform/schedule/pkg/ratelimit"
	"github.com/peakform/schedule/pkg/service"
	"github.com/peakform/schedule/pkg/worker"
)

const (
	version         = "0.1.0"
	reminderHorizon = time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := pgstore.New(ctx, log, cfg.PgDSN)
	if err != nil {
		log.Panic(err)
	}
	if err = store.Migrate(migrate.Up); err != nil {
		log.Panic(err)
	}

	connector := calendar.NewConnector(log, store, cfg.Google, []byte(cfg.JWT.Secret))
	cal := calendar.New(log, connector, cfg.Google.Timeout)

	var notify service.Notifier = notifier.NewDummy(log)
	if cfg.Telegram.Token != "" {
		tg, err := notifier.NewTelegram(log, cfg.Telegram.Token)
		if err != nil {
			log.Panic(err)
		}
		notify = tg
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemory(cfg.RateLimit.Window, cfg.RateLimit.Max)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = ratelimit.NewRedis(log, client, cfg.RateLimit.Window, cfg.RateLimit.Max)
	}

	app := service.NewScheduleService(log, store, cal, notify)
	reminder := worker.New(log, store, notify, reminderHorizon)
	server := rest.NewServer(log, app, connector, limiter, []byte(cfg.JWT.Secret), cfg.Address, version)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
		<-sigCh
		log.Info("Received signal, shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := reminder.Run(ctx); err != nil {
			log.Errorf("reminder worker stopped: %v", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			log.Panic(err)
		}
	}()
	wg.Wait()
	log.Info("Server stopped")
}
