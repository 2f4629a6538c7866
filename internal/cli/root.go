// Package cli implements the coinledger command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/app/ledger"
	"github.com/fableworks/coinledger/internal/app/orders"
	"github.com/fableworks/coinledger/internal/daemon"
	"github.com/fableworks/coinledger/internal/infra/sqlite"
	"github.com/fableworks/coinledger/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "coinledger",
	Short: "Coin ledger and payment reconciliation service",
	Long: `coinledger keeps per-account virtual coin balances with an append-only
transaction log, signs recharge orders for the mini-app payment platform and
credits accounts when the platform confirms payment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "coinledger.toml", "Path to the TOML config file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── Shared wiring ──────────────────────────────────────────────────────────

// env is the set of dependencies most commands need.
type env struct {
	cfg    *daemon.Config
	log    *zap.Logger
	db     *sqlite.DB
	ledger *ledger.Service
	orders *orders.Manager
}

func loadEnv() (*env, error) {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := sqlite.Open(cfg.Database.Dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ls := ledger.New(db, ledger.Config{
		InitialGrant: cfg.Ledger.InitialGrant,
		InviteReward: cfg.Ledger.InviteReward,
	}, log)
	om := orders.New(db, orders.NewCatalog(cfg.Payment.Plans), cfg.Ledger.FirstChargeBonus, cfg.Payment.OrderPrefix, log)

	return &env{cfg: cfg, log: log, db: db, ledger: ls, orders: om}, nil
}

func (e *env) Close() {
	e.db.Close()
	e.log.Sync()
}
