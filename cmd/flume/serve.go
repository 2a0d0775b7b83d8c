package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flume/internal/api"
	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/runner"
)

func newServeCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			e, err := newEnv(ctx, g.configPath, os.Stdout)
			if err != nil {
				return err
			}
			defer e.Close()

			startTime := time.Now()
			opts := e.runnerOptions()

			// Pipeline живут дольше запроса, но не дольше сервера
			pipelinesCtx, stopPipelines := context.WithCancel(context.WithoutCancel(ctx))
			defer stopPipelines()

			handler := api.NewHandler(api.Config{
				Launch: func(ctx context.Context, spec *domain.PipelineSpec) (*runner.Pipeline, error) {
					return runner.Run(ctx, spec, opts)
				},
				BaseContext: pipelinesCtx,
				Publisher:   e.publisher,
				Logger:      e.logger,
			})

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintf(w, "ok %s", time.Since(startTime))
			})
			mux.Handle("/metrics", e.metricsHandler())
			handler.RegisterRoutes(mux)

			if v := os.Getenv("API_PORT"); v != "" && !cmd.Flags().Changed("addr") {
				addr = ":" + v
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				e.logger.Info("listening", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return fmt.Errorf("server: %w", err)
			}
			e.logger.Info("shutting down")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				e.logger.Error("shutdown error", "error", err)
			}
			handler.Pipelines().StopAll()

			e.logger.Info("stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")

	return cmd
}
