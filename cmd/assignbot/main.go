// Command assignbot runs the webhook service that lets contributors claim
// and release issues with /start and /stop, and keeps linked pull-request
// state in sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskops/assignbot/internal/config"
	"github.com/taskops/assignbot/internal/github"
	"github.com/taskops/assignbot/internal/wallet"
	"github.com/taskops/assignbot/internal/webhook"
)

var settingsPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "assignbot",
		Short:         "Webhook handler for /start and /stop task commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	serveCmd.Flags().StringVar(&settingsPath, "settings", "", "path to the policy settings file (overrides ASSIGNBOT_SETTINGS_PATH)")

	rootCmd.AddCommand(serveCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: env.SlogLevel()}))
	slog.SetDefault(logger)

	path := settingsPath
	if path == "" {
		path = env.SettingsPath
	}
	settings, err := config.LoadSettings(path)
	if err != nil {
		return err
	}

	store, err := wallet.Open(ctx, env.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	client := github.NewClient(env.GitHubToken, "", "").WithBaseURL(env.GitHubAPIURL)

	server := webhook.NewServer(webhook.ServerConfig{
		Client:   client,
		Wallet:   store,
		Settings: settings,
		Secret:   []byte(env.WebhookSecret),
		Logger:   logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", "addr", env.HTTPAddr)
		errCh <- server.Start(env.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
