package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360/semledger/ledger"
	"github.com/c360/semledger/metric"
)

func snapshotCmd(opts *cliOptions) *cobra.Command {
	var head string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write an index snapshot for a commit chain",
		Long: `Snapshot replays the chain up to the head commit and writes the
resulting version as a content-addressed snapshot document. A later
replay whose head references the snapshot skips the commits it
already covers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadEnvironment(opts)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			metrics := metric.NewRegistry()
			store, cleanup, err := openStore(ctx, cfg, logger, metrics)
			if err != nil {
				return err
			}
			defer cleanup()

			merger := newMerger(cfg, store, logger, metrics)
			db, err := merger.LoadDBIdx(ctx, cfg.Ledger.Alias, head)
			if err != nil {
				return fmt.Errorf("replay chain: %w", err)
			}

			addr, err := ledger.WriteSnapshot(ctx, store, db)
			if err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}

			logger.Info("snapshot written",
				"alias", db.Alias, "t", db.LogicalT(), "address", addr)
			fmt.Printf("snapshot: %s (t=%d, %d flakes)\n",
				addr, db.LogicalT(), db.Stats.Flakes)
			return nil
		},
	}

	cmd.Flags().StringVar(&head, "head", "", "Content address of the head commit (required)")
	_ = cmd.MarkFlagRequired("head")

	return cmd
}
