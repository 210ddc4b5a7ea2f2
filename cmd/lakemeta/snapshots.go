package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSnapshotsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List the snapshots of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			snapshots, err := a.table.snapshots.Snapshots(ctx)
			if err != nil {
				return err
			}
			tagsByID := make(map[int64][]string)
			names, err := a.table.tags.Tags(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				s, err := a.table.tags.TaggedSnapshot(ctx, name)
				if err != nil {
					return err
				}
				tagsByID[s.ID] = append(tagsByID[s.ID], name)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tKIND\tSCHEMA\tCOMMITTED\tTOTAL\tDELTA\tWATERMARK\tTAGS")
			for _, s := range snapshots {
				watermark := "-"
				if s.Watermark != nil {
					watermark = fmt.Sprint(*s.Watermark)
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%d\t%s\t%v\n",
					s.ID, s.CommitKind, s.SchemaID,
					time.UnixMilli(s.TimeMillis).UTC().Format(time.RFC3339),
					s.TotalRecordCount, s.DeltaRecordCount, watermark, tagsByID[s.ID])
			}
			return w.Flush()
		},
	}
}
