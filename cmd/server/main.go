package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/parking-reservation/internal/booking"
	"github.com/iliyamo/parking-reservation/internal/cache"
	"github.com/iliyamo/parking-reservation/internal/config"
	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/handler"
	"github.com/iliyamo/parking-reservation/internal/jobs"
	"github.com/iliyamo/parking-reservation/internal/live"
	"github.com/iliyamo/parking-reservation/internal/logging"
	"github.com/iliyamo/parking-reservation/internal/metrics"
	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/router"
	"github.com/iliyamo/parking-reservation/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, dialect, err := database.Connect(cfg.DBDriver, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("database connect failed")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, dialect); err != nil {
			log.WithError(err).Fatal("migrate failed")
		}
		log.Info("schema ready")
	}

	lots := repository.NewLotRepo(db, dialect)
	spots := repository.NewSpotRepo(db, dialect)
	bookings := repository.NewBookingRepo(db, dialect)
	users := repository.NewUserRepo(db, dialect)
	tokens := repository.NewTokenRepo(db)
	analytics := repository.NewAnalyticsRepo(db)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			log.WithError(err).Fatal("seed admin failed")
		}
		if created {
			log.WithField("email", cfg.AdminEmail).Info("admin account created")
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, response cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()
	store := cache.NewStore(rdb, cacheCfg.Prefix)

	jobsCfg, err := config.LoadJobsConfig("")
	if err != nil {
		log.WithError(err).Fatal("jobs config")
	}
	publisher := service.NewPublisher(jobsCfg.BrokerURL, jobsCfg.Queue, log)

	hub := live.NewHub(log)
	ctrl := booking.NewController(db,
		booking.Repos{Lots: lots, Spots: spots, Bookings: bookings, Users: users},
		cache.Fanout{cache.NewLotInvalidator(store), hub},
		jobs.NewNotifier(publisher, log),
		log,
	)

	var m *metrics.Metrics
	reg := prometheus.NewRegistry()
	if cfg.MetricsEnabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.RegisterDB(reg, db, "parking")
		m = metrics.New(reg, "parking")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	if m != nil {
		e.Use(middleware.Metrics(m))
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterLots(e, handler.NewLotHandler(lots, spots, ctrl), cfg.JWTSecret, middleware.LotCache(cacheCfg, store))
	analyticsH := handler.NewAnalyticsHandler(analytics)
	router.RegisterBookings(e, handler.NewBookingHandler(ctrl, publisher, m), analyticsH, cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterAdmin(e, handler.NewAdminLotHandler(lots, spots, ctrl), analyticsH, cfg.JWTSecret)
	router.RegisterLive(e, hub)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "db": string(dialect)}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
	log.Info("server stopped")
}
