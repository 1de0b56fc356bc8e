package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/api"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the validation HTTP API",
	Long: `Serve exposes validation, council and cache maintenance over HTTP:
  GET    /healthz          liveness and configured agents
  GET    /metrics          Prometheus metrics
  POST   /v1/validate      validate inline text or an http(s) URL
  POST   /v1/council       ask every agent the same question
  GET    /v1/cache         cache statistics
  DELETE /v1/cache         invalidate by ?content= or ?settings= hash, or clear
  POST   /v1/cache/sweep   remove expired entries

Example:
  concord serve
  concord serve --addr :8088`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(ctx, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	addr := serveAddr
	if addr == "" {
		addr = sess.config.Server.Addr
	}

	opts := []api.ServerOption{
		api.WithLogger(sess.logger),
		api.WithCORSOrigins(sess.config.Server.CORSOrigins),
	}
	if sess.cache != nil {
		opts = append(opts, api.WithCache(sess.cache))
	}

	sess.logger.Info("serving",
		zap.Strings("agents", sess.pipeline.Agents()),
		zap.Int("min_models_required", sess.config.Consensus.MinModelsRequired),
		zap.Bool("cache", sess.cache != nil),
	)

	if err := api.NewServer(sess.pipeline, opts...).ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
