package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Spok95/tutorcenter/internal/config"
	"github.com/Spok95/tutorcenter/internal/logging"
)

var (
	cfg *config.Config
	lg  *logging.Log
)

var rootCmd = &cobra.Command{
	Use:   "tutorcenter",
	Short: "Tutoring center administration: scheduling, compliance and finance",
	Long: `tutorcenter runs the admin API for a tutoring center and the
maintenance tasks around it.

Configuration comes from the environment, merged with a .env file when
one is present in the working directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if lg, err = logging.Init(cfg.LogLevel, cfg.Env); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		if cfg.DevSecret {
			lg.Base.Warn("JWT_SECRET is not set, using the development secret")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if lg != nil {
			lg.Closer()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, superadminCmd, payrollCmd, exportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
