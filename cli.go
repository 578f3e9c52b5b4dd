// cli.go -- cobra command tree.
package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MGallo-Code/wxauth/internal/config"
	"github.com/MGallo-Code/wxauth/internal/oauth"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:     "wxauth",
		Short:   "WeChat web OAuth login gateway",
		Version: version,
		// Errors are printed by cobra; usage only for argument mistakes.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; real env vars always win.
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("loading %s: %w", envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to preload into the environment")

	root.AddCommand(newServeCmd(), newAuthorizeURLCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, nil); err != nil {
				slog.Error("fatal", "err", err)
				return err
			}
			return nil
		},
	}
}

func newAuthorizeURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize-url <page-url>",
		Short: "Print the provider authorize URL for a page",
		Long: `Print the URL a browser on <page-url> would be redirected to.
Uses the same configuration as serve (WX_APP_ID, WX_SCOPE, WX_STATE, ...).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			clientCfg, err := cfg.ClientConfig().Normalize()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), oauth.AuthorizeURL(clientCfg, args[0]))
			return nil
		},
	}
}

