package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/INLOpen/nexuslake/snapshot"
	"github.com/spf13/cobra"
)

func newTagCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Create, delete and list tags",
	}
	cmd.AddCommand(newTagCreateCmd(a), newTagDeleteCmd(a), newTagListCmd(a))
	return cmd
}

func newTagCreateCmd(a *app) *cobra.Command {
	var snapshotID int64
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Pin a snapshot under a tag name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var s *snapshot.Snapshot
			var err error
			if snapshotID > 0 {
				s, err = a.table.snapshots.Snapshot(ctx, snapshotID)
			} else {
				s, err = a.table.snapshots.Latest(ctx)
			}
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("cannot tag an empty table")
			}
			if err := a.table.tags.CreateTag(ctx, s, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tag %s -> snapshot %d\n", args[0], s.ID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&snapshotID, "snapshot", 0, "snapshot id to tag; the latest when unset")
	return cmd
}

func newTagDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a tag, collecting its files if its snapshot has expired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.cfg.Snapshot
			e, err := a.table.expirer(s.NumRetainedMin, s.NumRetainedMax, 0)
			if err != nil {
				return err
			}
			err = a.table.withMaintenanceLock(cmd.Context(), func() error {
				return e.DeleteTag(cmd.Context(), args[0])
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tag %s deleted\n", args[0])
			return nil
		},
	}
}

func newTagListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tags with the snapshot each pins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			names, err := a.table.tags.Tags(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "TAG\tSNAPSHOT\tEXPIRED")
			for _, name := range names {
				s, err := a.table.tags.TaggedSnapshot(ctx, name)
				if err != nil {
					return err
				}
				exists, err := a.table.snapshots.Exists(ctx, s.ID)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "%s\t%d\t%t\n", name, s.ID, !exists)
			}
			return w.Flush()
		},
	}
}
