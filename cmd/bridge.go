package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hollowdong/chatbridge/internal/adapters"
	"github.com/hollowdong/chatbridge/internal/adapters/discord"
	"github.com/hollowdong/chatbridge/internal/adapters/qq"
	"github.com/hollowdong/chatbridge/internal/adapters/telegram"
	"github.com/hollowdong/chatbridge/internal/bus"
	"github.com/hollowdong/chatbridge/internal/command"
	"github.com/hollowdong/chatbridge/internal/config"
	"github.com/hollowdong/chatbridge/internal/core"
	"github.com/hollowdong/chatbridge/internal/media"
	"github.com/hollowdong/chatbridge/internal/store"
)

func runBridge() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	users, err := store.OpenUserStore(dataDir)
	if err != nil {
		slog.Error("failed to open user store", "error", err)
		os.Exit(1)
	}
	horizon := time.Duration(cfg.HistoryHorizonHours) * time.Hour
	messages, err := store.OpenMessageStore(dataDir, horizon)
	if err != nil {
		slog.Error("failed to open message store", "error", err)
		os.Exit(1)
	}

	runtime := config.NewRuntime(cfg)
	cache := media.NewCache("cache")
	c := core.New(users, messages, cache, runtime)
	msgBus := bus.New(messages)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	go func() {
		if err := runtime.Watch(ctx, cfgPath); err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()

	list, err := buildAdapters(c, msgBus, cfg)
	if err != nil {
		slog.Error("failed to wire adapters", "error", err)
		os.Exit(1)
	}

	slog.Info("bridge starting", "bridges", len(cfg.Bridges))
	if err := adapters.Supervise(ctx, list...); err != nil {
		slog.Error("bridge stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("bridge stopped")
}

// buildAdapters registers one bus client per platform and constructs the
// adapter set: the three chat platforms plus the command processor.
func buildAdapters(c *core.Core, msgBus *bus.Bus, cfg *config.Config) ([]adapters.Adapter, error) {
	qqClient, err := msgBus.Register("qq")
	if err != nil {
		return nil, err
	}
	dcClient, err := msgBus.Register("discord")
	if err != nil {
		return nil, err
	}
	tgClient, err := msgBus.Register("telegram")
	if err != nil {
		return nil, err
	}
	cmdClient, err := msgBus.Register("cmd")
	if err != nil {
		return nil, err
	}

	return []adapters.Adapter{
		qq.New(c, qqClient, cfg.QQConfig),
		discord.New(c, dcClient, cfg.DiscordConfig),
		telegram.New(c, tgClient, cfg.TelegramConfig),
		command.NewAdapter(c, cmdClient),
	}, nil
}
