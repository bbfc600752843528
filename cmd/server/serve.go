package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/stay-booking-payments/internal/booking"
	"github.com/iliyamo/stay-booking-payments/internal/config"
	"github.com/iliyamo/stay-booking-payments/internal/database"
	"github.com/iliyamo/stay-booking-payments/internal/gateway"
	"github.com/iliyamo/stay-booking-payments/internal/handler"
	"github.com/iliyamo/stay-booking-payments/internal/logging"
	"github.com/iliyamo/stay-booking-payments/internal/notifier"
	"github.com/iliyamo/stay-booking-payments/internal/payment"
	"github.com/iliyamo/stay-booking-payments/internal/queue"
	"github.com/iliyamo/stay-booking-payments/internal/repository"
	"github.com/iliyamo/stay-booking-payments/internal/router"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "create missing tables before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)
	gcfg := config.LoadGatewayConfig()
	ncfg := config.LoadNotifierConfig()
	cacheCfg := config.LoadCacheConfig()
	rlCfg := config.LoadRateLimitConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	// nil when Redis is unreachable; cache and rate limiting then pass through.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable, running without cache and rate limiting")
	} else {
		defer rdb.Close()
	}

	publisher := queue.NewPublisher(ncfg.AMQPURL, ncfg.Queue)
	defer publisher.Close()
	notices := notifier.New(publisher, ncfg, log)
	notices.Start(ctx)

	users := repository.NewUserRepo(db)
	props := repository.NewPropertyRepo(db)
	ledger := repository.NewLedger(db)

	bookings := booking.NewService(props, ledger.Bookings, users, notices, cfg.GuestFallbackEmail)
	engine := payment.NewEngine(ledger,
		gateway.NewChapaClient(gcfg.BaseURL, gcfg.SecretKey, gcfg.Timeout),
		notices,
		payment.Options{
			Currency:    gcfg.Currency,
			CallbackURL: gcfg.CallbackURL,
			ReturnURL:   gcfg.ReturnURL,
			Title:       gcfg.Title,
		},
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(logging.RequestLogger(log))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users), cfg.JWTSecret)
	router.RegisterProperties(e, handler.NewPropertyHandler(props, rdb, cacheCfg.Prefix), cfg.JWTSecret, cacheCfg, rdb)
	router.RegisterBookings(e, handler.NewBookingHandler(bookings), cfg.JWTSecret)
	router.RegisterPayments(e, handler.NewPaymentHandler(engine, bookings), cfg.JWTSecret, rlCfg, rdb)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(sctx)
		notices.Close()
		return err
	})
	return g.Wait()
}
