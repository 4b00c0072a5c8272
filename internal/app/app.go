package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/medremind/internal/alarm"
	"github.com/gmsas95/medremind/internal/api"
	"github.com/gmsas95/medremind/internal/channels/telegram"
	"github.com/gmsas95/medremind/internal/config"
	"github.com/gmsas95/medremind/internal/engine"
	"github.com/gmsas95/medremind/internal/gateway"
	"github.com/gmsas95/medremind/internal/history"
	"github.com/gmsas95/medremind/internal/metrics"
	"github.com/gmsas95/medremind/internal/store"
)

// App wires the reminder engine to its storage, gateway and outer surfaces
type App struct {
	Config      *config.Config
	ConfigPath  string
	Store       *store.Store
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Gateway     *gateway.Local
	Breaker     *gateway.Breaker
	Engine      *engine.Engine
	TelegramBot *telegram.Bot
	Version     string
}

func New(cfg *config.Config, st *store.Store, logger *zap.Logger, version string) *App {
	return &App{
		Config:  cfg,
		Store:   st,
		Logger:  logger,
		Metrics: metrics.Default(),
		Version: version,
	}
}

// Build constructs the gateway and the engine. It is safe to call twice.
func (app *App) Build() {
	if app.Engine != nil {
		return
	}
	cfg := app.Config
	loc := cfg.Reminder.Location()

	app.Gateway = gateway.NewLocal(app.Store.DB(), gateway.LocalConfig{
		PermissionGranted: cfg.Gateway.PermissionGranted,
		Location:          loc,
	}, app.Logger.Named("gateway"))

	app.Breaker = gateway.NewBreaker(app.Gateway, gateway.BreakerConfig{
		MaxFailures: uint32(cfg.Gateway.BreakerMaxFailures),
		Timeout:     time.Duration(cfg.Gateway.BreakerTimeoutSecs) * time.Second,
	}, app.Logger.Named("breaker"))

	app.Engine = engine.New(engine.Config{
		PollInterval:     cfg.Reminder.PollInterval(),
		SnoozeDuration:   cfg.Reminder.SnoozeDuration(),
		VibrationPattern: cfg.Reminder.VibrationPattern(),
		Location:         loc,
	}, engine.Deps{
		KV:      app.Store,
		Gateway: app.Breaker,
		Alerter: &alarm.LogAlerter{SoundPath: cfg.Reminder.SoundPath, Logger: app.Logger.Named("alerter")},
		History: history.NewStore(app.Store.DB()),
		Metrics: app.Metrics,
		Logger:  app.Logger.Named("engine"),
	})
}

// Start starts the gateway, the engine and, when configured, the Telegram bot
func (app *App) Start(ctx context.Context) error {
	app.Build()

	if err := app.Gateway.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	if err := app.Engine.Start(ctx); err != nil {
		app.Gateway.Stop()
		return fmt.Errorf("failed to start engine: %w", err)
	}

	tg := app.Config.Channels.Telegram
	if tg.Enabled {
		bot, err := telegram.NewBot(telegram.Config{
			Token:   tg.BotToken,
			Enabled: true,
			ChatID:  tg.ChatID,
		}, app.Engine, app.Gateway, app.Logger.Named("telegram"))
		if err != nil {
			app.Logger.Error("Failed to create Telegram bot", zap.Error(err))
		} else if err := bot.Start(); err != nil {
			app.Logger.Error("Failed to start Telegram bot", zap.Error(err))
		} else {
			app.TelegramBot = bot
			app.Logger.Info("Telegram bot started")
		}
	}
	return nil
}

// Stop shuts everything down in reverse start order
func (app *App) Stop() {
	if app.TelegramBot != nil {
		app.TelegramBot.Stop()
	}
	if app.Engine != nil {
		app.Engine.Stop()
	}
	if app.Gateway != nil {
		app.Gateway.Stop()
	}
}

// ApplyConfig takes the settings that can change without a restart. It runs
// on the watcher goroutine, so app.Config is left untouched and the new values
// go to the engine, which guards its own state.
func (app *App) ApplyConfig(cfg *config.Config) {
	if app.Engine == nil {
		return
	}
	if d := cfg.Reminder.SnoozeDuration(); d != app.Engine.Scheduler().SnoozeDuration() {
		app.Engine.SetSnoozeDuration(d)
		app.Logger.Info("Snooze duration updated", zap.Duration("snooze", d))
	}
}

// ResetReminders cancels every scheduled reminder and registers them again
func (app *App) ResetReminders(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Stop()
	return app.Engine.ResetReminders(ctx)
}

func (app *App) RunServer() error {
	if err := app.Start(context.Background()); err != nil {
		return err
	}

	err := config.Watch(app.ConfigPath, app.Config.Storage.DataDir, func(cfg *config.Config, err error) {
		if err != nil {
			app.Logger.Warn("Ignoring invalid config change", zap.Error(err))
			return
		}
		app.ApplyConfig(cfg)
	})
	if err != nil {
		app.Logger.Debug("Config hot reload disabled", zap.Error(err))
	}

	server := api.New(app.Config, app.Engine, app.Metrics, app.Logger.Named("api"))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	app.Logger.Info("Server started",
		zap.String("version", app.Version),
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.Int("medications", len(app.Engine.Medications())),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			app.Logger.Error("Server error", zap.Error(err))
		}
	}

	app.Logger.Info("Shutting down...")

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	app.Stop()
	return nil
}
