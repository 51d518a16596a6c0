package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voskan/merkstore/pkg/storedb"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	dbPath    string
	cacheSize int
	json      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "merkstore-inspect",
		Short:         "Inspect a merkstore Badger data directory (reads only)",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to the Badger data directory (required)")
	cmd.PersistentFlags().IntVar(&opts.cacheSize, "cache-size", 4096, "read-cache capacity to report the backend as configured with")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "emit machine-readable JSON instead of a text table")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newRootsCmd(opts))
	cmd.AddCommand(newGCCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	return cmd
}

// openDB opens the Badger store named by opts.dbPath and hands the caller
// a close func to defer. Every subcommand only ever reads through the
// storedb.DB contract directly (roots/gc) or a freshly constructed backend
// (stats) — none of them mutate the store.
func openDB(opts *rootOptions) (*storedb.BadgerDB, func(), error) {
	if opts.dbPath == "" {
		return nil, nil, fmt.Errorf("--db is required")
	}
	db, err := storedb.OpenBadgerDB(opts.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", opts.dbPath, err)
	}
	return db, func() { _ = db.Close() }, nil
}
