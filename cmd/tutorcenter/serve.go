package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/app"
	"github.com/Spok95/tutorcenter/internal/jobs"
	"github.com/Spok95/tutorcenter/internal/observability"
)

const tokenPurgeEvery = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background jobs",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	log := lg.Base

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, cfg.Release)
	if err != nil {
		log.Warn("sentry init failed", zap.Error(err))
	}
	defer flush()

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	n, tg, err := notifiers(log)
	if err != nil {
		return err
	}
	svc := services(b, n, log)

	tasks := &jobs.Tasks{
		Store:    b.store,
		Tokens:   b.tokens,
		Notifier: n,
		Finance:  svc.Finance,
		Location: cfg.Location,
		Logger:   log,
	}
	if tg != nil {
		tasks.Alerter = tg
	}
	runner := jobs.New(ctx, cfg.Location, log)
	runner.Every(cfg.ReminderEvery, "session_reminders", tasks.SessionReminders)
	runner.Every(cfg.ReminderEvery, "compliance_alerts", tasks.ComplianceAlerts)
	runner.Every(tokenPurgeEvery, "purge_tokens", tasks.PurgeTokens)
	if err := runner.Cron(cfg.PayrollCron, "monthly_payroll", tasks.MonthlyPayroll); err != nil {
		cancel()
		runner.Wait()
		return err
	}

	api := app.New(svc, app.Options{
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.TokenTTL,
		Location:  cfg.Location,
		Logger:    log,
	})
	log.Info("tutorcenter starting",
		zap.String("env", cfg.Env), zap.String("store", cfg.Store), zap.String("tz", cfg.Location.String()))
	err = app.Serve(ctx, cfg.HTTPAddr, api.Router(), log)

	cancel()
	runner.Wait()
	log.Info("tutorcenter stopped")
	return err
}
