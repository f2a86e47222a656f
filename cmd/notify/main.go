package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/adsign/notify/internal/client"
	"github.com/adsign/notify/internal/config"
	"github.com/adsign/notify/internal/model"
	"github.com/adsign/notify/internal/realtime"
	feedService "github.com/adsign/notify/internal/service/feed"
	"github.com/adsign/notify/internal/store"
	"github.com/adsign/notify/internal/toast"
	"github.com/adsign/notify/internal/token"
	"github.com/adsign/notify/pkg/logger"
	"github.com/adsign/notify/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	appLog := logger.New(&logger.Config{Level: level, Output: os.Stdout})

	m := metrics.New("notify")
	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
		appLog.Fatal(err, "failed to register metrics")
	}

	tokens := token.FileSource{Path: cfg.Auth.TokenFile}
	tok := tokens.Token()
	if tok == "" {
		appLog.Fatal(nil, "no stored access token, sign in first")
	}

	restClient := client.New(cfg.API.BaseURL, cfg.API.Timeout, tokens, client.WithMetrics(m))
	defer restClient.Close()

	notifications := store.New()
	feed := feedService.NewService(restClient, notifications, appLog)

	toaster := toast.New(
		toast.WithTTL(cfg.Toast.TTL),
		toast.WithMetrics(m),
		toast.WithEvictHook(func(t toast.Toast) {
			appLog.Debug("toast dismissed", "toast_id", t.ID)
		}),
	)
	defer toaster.Close()

	manager := realtime.NewManager(
		realtime.Config{
			URL:               cfg.Realtime.URL,
			ReconnectAttempts: cfg.Realtime.ReconnectAttempts,
			ReconnectDelay:    cfg.Realtime.ReconnectDelay,
		},
		appLog,
		[]realtime.Sink{
			func(kind model.Kind, n model.Notification) {
				notifications.PrependRealtime(kind, n)
			},
			func(_ model.Kind, n model.Notification) {
				t := toaster.Push(n)
				appLog.Info("notification arrived", "title", t.Title, "message", t.Message)
			},
		},
		realtime.WithMetrics(m),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, kind := range []model.Kind{model.KindUser, model.KindRole} {
		if err := feed.LoadPage(ctx, kind, client.FetchOptions{Page: 1, Size: 10}); err != nil {
			appLog.Error(err, "initial fetch failed", "kind", kind)
		}
	}
	appLog.Info("feed loaded", "unread", feed.UnreadCount())

	if err := manager.Open(ctx, tok); err != nil {
		appLog.Fatal(err, "failed to open realtime connection")
	}
	defer manager.Close()

	changes := notifications.Subscribe()
	for {
		select {
		case <-ctx.Done():
			appLog.Info("shutting down")
			return
		case <-changes:
			appLog.Debug("store updated", "unread", feed.UnreadCount())
		}
	}
}
