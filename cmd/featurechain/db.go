package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/loomnetwork/featurechain/db"
)

func newDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database Maintenance",
	}
	cmd.AddCommand(
		newCompactDBCommand(),
	)
	return cmd
}

func newCompactDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Compacts the node database to reclaim disk space",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseConfig()
			if err != nil {
				return err
			}
			if cfg.DBBackend != db.GoLevelDBBackend {
				return errors.Errorf("can't compact a %s database", cfg.DBBackend)
			}
			ldb, err := db.LoadDB(cfg.DBBackend, cfg.DBName, cfg.DBPath(), cfg.DBCacheSizeMeg)
			if err != nil {
				return errors.Wrapf(err, "failed to load %s/%s", cfg.DBPath(), cfg.DBName)
			}
			defer ldb.Close()

			stats, err := ldb.Property("leveldb.stats")
			if err != nil {
				return err
			}
			fmt.Printf("--- %s stats before compacting ---\n%v------\n", cfg.DBName, stats)

			if err := ldb.Compact(); err != nil {
				return errors.Wrap(err, "failed to compact db")
			}

			stats, err = ldb.Property("leveldb.stats")
			if err != nil {
				return err
			}
			fmt.Printf("--- %s stats after compacting ---\n%v------\n", cfg.DBName, stats)
			return nil
		},
	}
	return cmd
}
