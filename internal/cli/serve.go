package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/api"
	"github.com/fableworks/coinledger/internal/app/payment"
	"github.com/fableworks/coinledger/internal/infra/paysign"
	"github.com/fableworks/coinledger/internal/infra/platform"
	"github.com/fableworks/coinledger/internal/security"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	cfg, log := e.cfg, e.log

	key, err := paysign.LoadPrivateKey(cfg.Payment.PrivateKeyPath)
	if err != nil {
		return err
	}
	signer := paysign.New(paysign.Config{
		AppID:            cfg.Payment.AppID,
		KeyVersion:       cfg.Payment.KeyVersion,
		NotifyURL:        cfg.Payment.NotifyURL,
		PayExpireSeconds: cfg.Payment.PayExpireSeconds,
	}, key)
	if !signer.Ready() {
		log.Warn("payment signing key not loaded; order creation disabled unless mock payments are allowed",
			zap.String("path", cfg.Payment.PrivateKeyPath))
	}
	if cfg.Payment.CallbackToken == "" {
		log.Warn("payment.callback_token is empty; every payment callback will be rejected")
	}

	verifier := paysign.NewCallbackVerifier(cfg.Payment.CallbackToken, cfg.ReplayWindow())
	rec := payment.NewReconciler(e.db, e.orders, e.ledger, verifier, log)

	srv := api.NewServer(e.ledger, e.orders, rec, signer, log)
	srv.EnableMetrics()
	srv.SetHealthCheck(e.db.Ping)
	srv.SetCORSOrigins(cfg.API.CORSOrigins)
	if cfg.Platform.AppID != "" {
		srv.SetPlatform(platform.New(platform.Config{
			AppID:     cfg.Platform.AppID,
			AppSecret: cfg.Platform.AppSecret,
			BaseURL:   cfg.Platform.BaseURL,
			Timeout:   cfg.PlatformTimeout(),
		}, log))
	}
	if cfg.API.JWTSecret != "" {
		srv.SetSessions(security.NewSessions(cfg.API.JWTSecret, cfg.SessionTTL()))
	}
	if cfg.API.AllowMockPayment {
		log.Warn("mock payments enabled; do not use in production")
		srv.AllowMockPayment()
	}

	sweeper, err := payment.NewSweeper(e.orders, cfg.PayExpiry()+sweepGrace, cfg.SweepInterval(), log)
	if err != nil {
		return fmt.Errorf("create sweeper: %w", err)
	}
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("coinledger listening", zap.String("addr", httpSrv.Addr), zap.String("db", e.db.Path()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// sweepGrace is added to the platform payment window before an order is
// considered abandoned.
const sweepGrace = 10 * time.Minute
