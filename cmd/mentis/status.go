package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperjump/mentis/internal/cli"
	"github.com/hyperjump/mentis/internal/config"
	"github.com/hyperjump/mentis/internal/storage"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show collections, record counts and disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.setup()
			if err != nil {
				return err
			}
			store, err := storage.Open(a.cfg.Storage.Backend, storePath(a.cfg))
			if err != nil {
				return err
			}
			defer store.Close()
			collections, err := store.Collections(cmd.Context())
			if err != nil {
				return err
			}
			st := &cli.Status{
				Backend:     a.cfg.Storage.Backend,
				Collections: collections,
				Retrievers:  a.cfg.RetrieverNames(),
			}
			if st.DatabasePath = storePath(a.cfg); st.DatabasePath != "" {
				files := append(storage.DatabaseFiles(st.DatabasePath), a.cfg.Storage.KeywordIndexPath)
				if n, err := storage.DiskUsageBytes(files...); err == nil {
					st.DiskUsageBytes = n
				}
			}
			return cli.WriteStatus(cmd.OutOrStdout(), st, a.format)
		},
	}
}

// storePath is the file backing the configured store: the database, or the memory snapshot.
func storePath(cfg *config.Config) string {
	if storage.Backend(cfg.Storage.Backend) == storage.BackendMemory {
		return cfg.Storage.SnapshotPath
	}
	return cfg.Storage.DatabasePath
}
