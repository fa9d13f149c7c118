package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/extract"
	"github.com/hyperjump/mentis/internal/watcher"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var initial bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-encode the diary whenever it changes",
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
			w, err := a.startWatcher(ctx, c)
			if err != nil {
				return err
			}
			defer w.Stop()
			if initial {
				w.Trigger(ctx, a.cfg.DiaryPath)
			}
			a.logger.Info("watching diary", zap.String("path", a.cfg.DiaryPath))
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&initial, "initial", false, "encode once before waiting for changes")
	return cmd
}

// startWatcher watches the diary and re-encodes the watch retrievers on every settled change.
func (a *app) startWatcher(ctx context.Context, c *Components) (*watcher.Watcher, error) {
	names := a.cfg.Watch.Retrievers
	if len(names) == 0 {
		names = a.cfg.RetrieverNames()
	}
	extractor := extract.NewExtractor()
	onChange := func(ctx context.Context, path string) {
		diary, err := extractor.Extract(path)
		if err != nil {
			a.logger.Warn("watch: read diary failed", zap.String("path", path), zap.Error(err))
			return
		}
		failed := 0
		for _, o := range encodeRetrievers(ctx, c.Registry, names, diary, a.logger) {
			if o.Error != "" {
				failed++
			}
		}
		a.logger.Info("watch: diary re-encoded",
			zap.String("path", path),
			zap.Int("succeeded", len(names)-failed),
			zap.Int("failed", failed))
	}
	w, err := watcher.NewWatcher([]string{a.cfg.DiaryPath}, onChange,
		watcher.WithLogger(a.logger),
		watcher.WithDebounce(a.cfg.Watch.Debounce))
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
