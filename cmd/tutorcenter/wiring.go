package main

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/accounts"
	"github.com/Spok95/tutorcenter/internal/app"
	"github.com/Spok95/tutorcenter/internal/attendance"
	"github.com/Spok95/tutorcenter/internal/db"
	"github.com/Spok95/tutorcenter/internal/export"
	"github.com/Spok95/tutorcenter/internal/files"
	"github.com/Spok95/tutorcenter/internal/finance"
	"github.com/Spok95/tutorcenter/internal/notify"
	"github.com/Spok95/tutorcenter/internal/scheduling"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/store/memstore"
)

// maxFileBytes caps one uploaded recording or material.
const maxFileBytes = 512 << 20

type backend struct {
	store  store.Store
	tokens store.TokenStore
	close  func()
}

// openBackend connects the configured store. Postgres is migrated to the
// latest version before use.
func openBackend(ctx context.Context) (*backend, error) {
	if cfg.Store == "memory" {
		m := memstore.New()
		lg.Base.Warn("using the in-memory store, data is lost on exit")
		return &backend{store: m, tokens: m, close: func() {}}, nil
	}
	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pg := db.NewStore(sqlDB)
	return &backend{store: pg, tokens: pg, close: func() { _ = sqlDB.Close() }}, nil
}

// notifiers always logs; Telegram and email join when configured. The
// Telegram channel is returned separately for admin alerts.
func notifiers(log *zap.Logger) (notify.Notifier, *notify.Telegram, error) {
	chain := notify.Multi{notify.NewLog(log)}
	var tg *notify.Telegram
	if cfg.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram: %w", err)
		}
		log.Info("telegram notifications enabled", zap.String("bot", bot.Self.UserName))
		tg = notify.NewTelegram(bot, cfg.AppName, cfg.AdminIDs)
		chain = append(chain, tg)
	}
	if cfg.SendgridKey != "" {
		chain = append(chain, notify.NewSendgrid(cfg.SendgridKey, cfg.MailFrom, cfg.AppName))
	}
	return chain, tg, nil
}

func services(b *backend, n notify.Notifier, log *zap.Logger) app.Services {
	sched := scheduling.New(b.store, scheduling.Options{
		Location:          cfg.Location,
		DefaultHourlyRate: cfg.DefaultHourlyRate,
		Logger:            log,
		Notifier:          n,
	})
	att := attendance.New(b.store, attendance.Options{
		Files:  files.NewLocal(cfg.UploadDir, maxFileBytes),
		Logger: log,
	})
	fin := finance.New(b.store, finance.Options{
		Location:          cfg.Location,
		DefaultHourlyRate: cfg.DefaultHourlyRate,
		Logger:            log,
		Notifier:          n,
	})
	acc := accounts.New(b.store, accounts.Options{
		Tokens:   b.tokens,
		Logger:   log,
		Notifier: n,
	})
	return app.Services{
		Store:      b.store,
		Accounts:   acc,
		Scheduling: sched,
		Attendance: att,
		Finance:    fin,
		Export:     export.New(b.store, fin, att, cfg.Location, log),
	}
}
