package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/api"
	"github.com/sells-group/siteplan/internal/boundary"
	"github.com/sells-group/siteplan/internal/config"
	"github.com/sells-group/siteplan/internal/setup"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the project setup API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		server := api.NewServer(apiConfig(cfg, e))
		defer server.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// apiConfig maps configuration onto the session template the server clones
// for every new project setup.
func apiConfig(c *config.Config, e *env) api.Config {
	return api.Config{
		Session: setup.Options{
			Geocoder:       e.Resolver,
			Source:         e.Source,
			Dissolver:      boundary.NewBBoxDissolver(e.Resolver),
			Store:          e.Store,
			MinZoom:        float64(c.Parcels.MinZoom),
			Debounce:       c.Parcels.Debounce(),
			FetchTimeout:   c.Parcels.FetchTimeout(),
			SaveTimeout:    time.Duration(c.Workflow.SaveTimeoutSecs) * time.Second,
			DocumentIngest: c.Workflow.DocumentIngest,
		},
		Geocoder:       e.Resolver,
		Store:          e.Store,
		Sink:           e.Sink,
		SessionTTL:     time.Duration(c.Server.SessionTTLMins) * time.Minute,
		AllowedOrigins: c.Server.AllowedOrigins,
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
