package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fintrax/pettyflow/internal/api"
	"github.com/fintrax/pettyflow/internal/disburse"
	"github.com/fintrax/pettyflow/internal/engine"
	"github.com/fintrax/pettyflow/internal/ledger"
	"github.com/fintrax/pettyflow/internal/llm"
	"github.com/fintrax/pettyflow/internal/voucher"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pettyflow HTTP server",
		Long: `Start the HTTP API serving classification, requisition lifecycle
and cashbook endpoints, plus Prometheus metrics on /metrics.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	classifier, err := llm.NewClassifier(llm.Config{
		Provider: viper.GetString("llm.provider"),
		APIKey:   viper.GetString("llm.api_key"),
		Model:    viper.GetString("llm.model"),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	eng := engine.New(store, classifier, logger)
	cashbook := ledger.NewCashbook(store, logger)
	lifecycle := disburse.NewService(store, cashbook, logger)
	poster := voucher.NewPoster(store, voucher.Config{
		BaseURL: viper.GetString("voucher.base_url"),
		Token:   viper.GetString("voucher.token"),
	}, logger)

	secret := viper.GetString("server.jwt_secret")
	if secret == "" {
		return errors.New("server.jwt_secret must be configured")
	}

	server := api.NewServer(api.Config{
		Addr:      viper.GetString("server.addr"),
		JWTSecret: secret,
	}, store, eng, lifecycle, cashbook, poster, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-cmd.Context().Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}
	return nil
}
