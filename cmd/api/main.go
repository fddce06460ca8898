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
	"go.uber.org/zap"

	"github.com/zhouzirui/survey-runner/backend/internal/cache"
	"github.com/zhouzirui/survey-runner/backend/internal/config"
	"github.com/zhouzirui/survey-runner/backend/internal/handler"
	sessionHandler "github.com/zhouzirui/survey-runner/backend/internal/handler/session"
	"github.com/zhouzirui/survey-runner/backend/internal/logging"
	"github.com/zhouzirui/survey-runner/backend/internal/notify"
	"github.com/zhouzirui/survey-runner/backend/internal/service/session"
	"github.com/zhouzirui/survey-runner/backend/internal/service/survey"
	"github.com/zhouzirui/survey-runner/backend/internal/store"
)

const (
	rabbitRetryInterval = 5 * time.Second
	rabbitAttempts      = 6
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	checks := map[string]handler.Checker{"store": st.Ping}
	opts := []survey.Option{survey.WithLogger(logger)}

	// Initialize trial cache
	if cfg.Cache.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			logger.Warn("redis unavailable, falling back to in-memory trial cache", zap.Error(err))
			opts = append(opts, survey.WithCache(cache.NewMemoryCache(cfg.Cache.TTL)))
		} else {
			defer redisCache.Close()
			checks["cache"] = redisCache.Ping
			opts = append(opts, survey.WithCache(redisCache))
			logger.Info("redis trial cache enabled")
		}
	} else {
		opts = append(opts, survey.WithCache(cache.NewMemoryCache(cfg.Cache.TTL)))
	}

	// Initialize saved-responses notifications
	if cfg.Notify.Enabled() {
		notifier, err := notify.DialRabbit(ctx, cfg.Notify.RabbitURL, cfg.Notify.Exchange, rabbitRetryInterval, rabbitAttempts, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, continuing without notifications", zap.Error(err))
		} else {
			defer notifier.Close()
			opts = append(opts, survey.WithNotifier(notifier))
			logger.Info("rabbitmq notifications enabled", zap.String("exchange", cfg.Notify.Exchange))
		}
	} else {
		logger.Info("RABBIT_URL not set, skipping notifications")
	}

	surveySvc := survey.NewService(st, opts...)
	sessionSvc := session.NewService()

	router := handler.NewRouter(handler.Dependencies{
		Survey:   surveySvc,
		Sessions: sessionSvc,
		Session: sessionHandler.Config{
			MinInterim: cfg.Session.InterimDelay,
			Logger:     logger,
		},
		CORSOrigins: cfg.Server.CORSOrigins,
		Checks:      checks,
		Logger:      logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

// openStore opens the configured store and seeds the demo questionnaire
// when the default trial set is empty.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	opts := []store.Option{store.WithAtomic(cfg.Atomic), store.WithLogger(logger)}
	if cfg.InMemory() {
		logger.Info("using in-memory store")
		return store.NewMemoryStore(store.Seed(), opts...), nil
	}

	st, err := store.OpenSQLite(cfg.Path, opts...)
	if err != nil {
		return nil, err
	}

	trials, err := st.Trials(ctx, store.DefaultTrialSet)
	if err != nil {
		st.Close()
		return nil, err
	}
	if len(trials) == 0 {
		if err := st.SeedTrials(ctx, store.DefaultTrialSet, store.Seed()); err != nil {
			st.Close()
			return nil, err
		}
		logger.Info("seeded default trial set", zap.Int("pages", len(store.Seed())))
	}

	logger.Info("sqlite store opened", zap.String("path", st.Path()), zap.Bool("atomic", cfg.Atomic))
	return st, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("survey runner listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
