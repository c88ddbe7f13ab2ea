package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/redeem-bot/assets"
	"github.com/ykvlv/redeem-bot/internal/bot"
	"github.com/ykvlv/redeem-bot/internal/config"
	"github.com/ykvlv/redeem-bot/internal/conversation"
	"github.com/ykvlv/redeem-bot/internal/entitlement"
	"github.com/ykvlv/redeem-bot/internal/ledger"
	"github.com/ykvlv/redeem-bot/internal/notify"
	"github.com/ykvlv/redeem-bot/internal/scheduler"
	"github.com/ykvlv/redeem-bot/internal/store"
	"github.com/ykvlv/redeem-bot/internal/telegram"
)

// App owns the bot process: Telegram API, storage and the health server.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	api     *tgbotapi.BotAPI
	httpSrv *http.Server
}

// New connects to the Telegram API and prepares the health server.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram api: %w", err)
	}
	api.Debug = false

	return &App{cfg: cfg, log: log, api: api, httpSrv: newHTTPServer(cfg.HTTPAddr)}, nil
}

func newHTTPServer(addr string) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// openRepo opens the configured database and, when REDIS_ADDR is set, moves
// conversation states to Redis.
func openRepo(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Repo, error) {
	var (
		repo store.Repo
		err  error
	)
	switch cfg.DBDriver {
	case config.DriverPostgres:
		repo, err = store.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		repo, err = store.OpenSQLite(ctx, cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	log.Info("database ready", zap.String("driver", cfg.DBDriver))

	if cfg.RedisAddr == "" {
		return repo, nil
	}
	states, err := store.OpenRedisStates(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, 0)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("open redis: %w", err)
	}
	log.Info("redis state store ready", zap.String("addr", cfg.RedisAddr))
	return store.WithRedisStates(repo, states), nil
}

// Run opens storage, wires the components and serves updates until ctx is done
// or a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting redeem-bot",
		zap.String("bot", a.api.Self.UserName),
		zap.String("http", a.cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepo(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			a.log.Warn("close store failed", zap.Error(err))
		}
	}()

	keys := ledger.New(repo, a.log)
	engine := entitlement.New(repo, keys, a.log)
	router := telegram.NewRouter(a.api, nil, a.cfg.UpdateWorkers, a.log)
	fanout := notify.New(router, repo, a.cfg.AdminIDs, a.cfg.FanoutWorkers, a.log)
	handler := bot.New(bot.Options{
		Admins:     a.cfg.AdminIDs,
		DevContact: a.cfg.DevContact,
		Services:   assets.Services(),
	}, repo, conversation.New(repo), engine, keys, fanout, a.log)
	router.SetHandler(handler)
	a.log.Info("components ready",
		zap.Int("admins", len(fanout.Admins())),
		zap.Int("fanout_workers", a.cfg.FanoutWorkers),
		zap.Int("update_workers", a.cfg.UpdateWorkers),
	)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.New(engine, fanout, a.cfg.SweepInterval, a.log).Run(ctx)
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := a.api.GetUpdatesChan(u)

	router.Run(ctx, updates)
	a.log.Info("shutdown signal received")
	a.api.StopReceivingUpdates()
	wg.Wait()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	return nil
}
