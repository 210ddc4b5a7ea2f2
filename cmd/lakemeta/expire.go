package main

import (
	"fmt"
	"time"

	"github.com/INLOpen/nexuslake/config"
	"github.com/spf13/cobra"
)

func newExpireCmd(a *app) *cobra.Command {
	var (
		retainMin int
		retainMax int
		olderThan string
	)
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire old snapshots and delete the files only they reference",
		Long: `expire keeps at least --retain-min snapshots and at most --retain-max. Between
the two bounds a snapshot survives while it is younger than --older-than. Flags
that are not given fall back to the snapshot section of the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := a.cfg.Snapshot
			if cmd.Flags().Changed("retain-min") {
				policy.NumRetainedMin = retainMin
			}
			if cmd.Flags().Changed("retain-max") {
				policy.NumRetainedMax = retainMax
			}
			if cmd.Flags().Changed("older-than") {
				if _, err := time.ParseDuration(olderThan); err != nil {
					return fmt.Errorf("invalid --older-than: %w", err)
				}
				policy.TimeRetained = olderThan
			}
			timeRetained := config.ParseDuration(policy.TimeRetained, time.Hour, a.logger)

			e, err := a.table.expirer(policy.NumRetainedMin, policy.NumRetainedMax, timeRetained)
			if err != nil {
				return err
			}
			var n int
			err = a.table.withMaintenanceLock(cmd.Context(), func() error {
				n, err = e.Expire(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "expired %d snapshots\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&retainMin, "retain-min", 0, "minimum number of snapshots to keep")
	cmd.Flags().IntVar(&retainMax, "retain-max", 0, "maximum number of snapshots to keep")
	cmd.Flags().StringVar(&olderThan, "older-than", "", "expire snapshots older than this duration, e.g. 24h")
	return cmd
}
