package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/parking-reservation/internal/config"
	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/jobs"
	"github.com/iliyamo/parking-reservation/internal/logging"
	"github.com/iliyamo/parking-reservation/internal/queue"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	jobsCfg, err := config.LoadJobsConfig("")
	if err != nil {
		log.WithError(err).Fatal("jobs config")
	}

	db, dialect, err := database.Connect(cfg.DBDriver, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("database connect failed")
	}
	defer db.Close()

	runner := jobs.NewRunner(jobs.Deps{
		Bookings:  repository.NewBookingRepo(db, dialect),
		Users:     repository.NewUserRepo(db, dialect),
		Analytics: repository.NewAnalyticsRepo(db),
		Mailer:    jobs.NewMailer(jobsCfg.SMTP, log.WithField("component", "mailer")),
		ExportDir: jobsCfg.ExportDir,
		Log:       log,
	})
	consumer := queue.NewConsumer(jobsCfg.BrokerURL, jobsCfg.Queue, jobsCfg.Prefetch, log)
	runner.Register(consumer)

	publisher := service.NewPublisher(jobsCfg.BrokerURL, jobsCfg.Queue, log)
	scheduler, err := jobs.NewScheduler(jobsCfg.Schedule, publisher, log)
	if err != nil {
		log.WithError(err).Fatal("schedule config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	log.WithField("queue", jobsCfg.Queue).Info("worker started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("worker stopped with error")
		os.Exit(1)
	}
	log.Info("worker stopped")
}
