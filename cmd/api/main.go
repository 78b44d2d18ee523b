package main

import (
	"context"
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "hotelbook/internal/adapters/http_server"
	"hotelbook/internal/adapters/observability"
	"hotelbook/internal/adapters/razorpay"
	redisad "hotelbook/internal/adapters/redis"
	"hotelbook/internal/app"
	"hotelbook/internal/clock"
	"hotelbook/internal/ledger"
	"hotelbook/internal/shared"
	mysqlrepo "hotelbook/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	clk := clock.NewSystem()

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	gw, err := razorpay.New(cfg.GatewayBase, cfg.GatewayKeyID, cfg.GatewaySecret, cfg.GatewayRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize payment gateway client")
	}

	// the ledger is authoritative for free rooms; prime it from the
	// bookings that already hold inventory
	led := ledger.New(clk)
	stays, err := repo.ListConfirmedStays(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("loading confirmed stays failed")
	}
	led.Prime(stays)
	log.Info().Int("stays", len(stays)).Msg("inventory ledger primed")

	payments := app.NewPaymentService(repo, led, gw, cfg.GatewaySecret, cfg.Currency, clk)
	reservations := app.NewReservationService(repo, repo, led, payments, clk, cfg.TaxRateBps, cfg.HoldTTL, cfg.CancelCutoff)
	queries := app.NewQueryService(repo, repo, led, cache, cfg.AvailCacheTTL)

	go reservations.RunSweeper(ctx, cfg.SweepInterval)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(server.NewHandlers(reservations, payments, queries))

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
