package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/INLOpen/nexuslake/scan"
	"github.com/spf13/cobra"
)

func newPlanCmd(a *app) *cobra.Command {
	var (
		snapshotID int64
		mode       string
		bucket     int32
		level      int32
		partitions bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the data files a scan would read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := scan.ParseMode(mode)
			if err != nil {
				return err
			}
			b := a.table.scanBuilder().WithMode(m)
			if snapshotID > 0 {
				b = b.WithSnapshotID(snapshotID)
			}
			if cmd.Flags().Changed("bucket") {
				b = b.WithBucket(bucket)
			}
			if cmd.Flags().Changed("level") {
				want := level
				b = b.WithLevelFilter(func(l int32) bool { return l == want })
			}
			planner, err := b.Build()
			if err != nil {
				return err
			}

			if partitions {
				parts, err := planner.Partitions(ctx)
				if err != nil {
					return err
				}
				for _, p := range parts {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), p.String())
				}
				return nil
			}

			plan, err := planner.Plan(ctx)
			if err != nil {
				return err
			}
			if plan.SnapshotID == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "table has no snapshots")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "snapshot %d, mode %s, %d files\n", *plan.SnapshotID, plan.Mode, len(plan.Files))

			files := plan.Files
			sort.SliceStable(files, func(i, j int) bool {
				pi, pj := files[i].Partition.String(), files[j].Partition.String()
				if pi != pj {
					return pi < pj
				}
				return files[i].Bucket < files[j].Bucket
			})
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "KIND\tPARTITION\tBUCKET\tLEVEL\tFILE\tROWS\tSIZE")
			for _, e := range files {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%d\t%d\n",
					e.Kind, e.Partition.String(), e.Bucket, e.File.Level, e.File.FileName, e.File.RowCount, e.File.FileSize)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&snapshotID, "snapshot", 0, "snapshot id to plan; the latest when unset")
	cmd.Flags().StringVar(&mode, "mode", "all", "scan mode: all, delta or changelog")
	cmd.Flags().Int32Var(&bucket, "bucket", 0, "only plan files of this bucket")
	cmd.Flags().Int32Var(&level, "level", 0, "only plan files of this LSM level")
	cmd.Flags().BoolVar(&partitions, "partitions", false, "list the partitions with live files instead")
	return cmd
}
