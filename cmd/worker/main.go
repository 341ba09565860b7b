package main

import (
	"context"
	"database/sql"
	"errors"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"product_reviews/internal/adapters/classifier"
	"product_reviews/internal/adapters/observability"
	redisad "product_reviews/internal/adapters/redis"
	"product_reviews/internal/adapters/redisqueue"
	"product_reviews/internal/app"
	"product_reviews/internal/shared"
	mysqlrepo "product_reviews/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger("worker", cfg.AppEnv)

	observability.Serve(cfg.MetricsAddr, observability.InitRegistry())

	log.Info().
		Str("stream", cfg.QueueStream).
		Str("group", cfg.QueueGroup).
		Str("consumer", cfg.QueueConsumer).
		Msg("worker starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	cls := classifier.New(cfg.ClassifierBase, cfg.ClassifierKey, cfg.ClassifierRPS, cfg.ClassifierTimeout)
	queue := redisqueue.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, redisqueue.Options{
		Stream:   cfg.QueueStream,
		Group:    cfg.QueueGroup,
		Consumer: cfg.QueueConsumer,
		Block:    cfg.QueueBlock,
		Reclaim:  cfg.QueueReclaim,
	})
	mod := app.NewModerator(repo, cls, cache, cfg.MaxDeliveries)

	// The worker runs forever: wait out broker unavailability at a fixed
	// cadence instead of exiting.
	if err := retry.Do(ctx, retry.NewConstant(5*time.Second), func(ctx context.Context) error {
		if err := queue.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("cannot connect to queue broker, retrying in 5 seconds")
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		log.Info().Msg("shutdown before broker became reachable")
		return
	}
	log.Info().Str("stream", cfg.QueueStream).Msg("worker listening")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Consume(ctx, mod.Handle) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("worker failed")
	}
	log.Info().Msg("worker stopped")
}
