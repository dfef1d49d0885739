package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jjenkins/billtracker/internal/handlers"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the billtracker API server",
	Long: `Start the HTTP API used to trigger refreshes, query bills by update date,
and manage each user's tracked bills.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Use PORT env var if set, otherwise use flag value
		if envPort := os.Getenv("PORT"); envPort != "" && !cmd.Flags().Changed("port") {
			port = envPort
		}

		ctx, stop := signalContext()
		defer stop()

		d, err := openDeps(ctx, "")
		if err != nil {
			return err
		}
		defer d.Close()

		if cfg.APIKey == "" {
			slog.Warn("API_KEY is not set; refresh endpoints will reject every request")
		}
		if len(cfg.JWTSecret) == 0 {
			slog.Warn("JWT_SECRET is not set; logins will fail")
		}

		app := handlers.NewApp(handlers.Deps{
			DB:        d.db,
			Bills:     d.bills,
			Refresher: d.refresher,
			Tracker:   d.tracker,
			Metrics:   d.metrics,
			Issuer:    d.issuer,
			APIKey:    cfg.APIKey,
		}, true)

		go func() {
			<-ctx.Done()
			slog.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				slog.Error("failed to shut down cleanly", "err", err)
			}
		}()

		slog.Info("starting server", "port", port)
		return app.Listen(":" + port)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to run the server on")
}
