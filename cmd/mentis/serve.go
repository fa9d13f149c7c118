package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/server"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var withWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.setup()
			if err != nil {
				return err
			}
			c, cleanup, err := a.components()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			if withWatch {
				w, err := a.startWatcher(ctx, c)
				if err != nil {
					return err
				}
				defer w.Stop()
			}

			srv := server.NewServer(c.Registry, c.Store, a.cfg, a.logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			a.logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				a.logger.Warn("server shutdown failed", zap.Error(err))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withWatch, "watch", false, "re-encode when the diary file changes")
	return cmd
}
