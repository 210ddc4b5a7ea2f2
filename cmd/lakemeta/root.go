package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"

	"github.com/INLOpen/nexuslake/config"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app carries what every subcommand shares once the root command set it up.
type app struct {
	cfgFile      string
	tablePath    string
	printMetrics bool

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	table    *table
	cleanup  []func()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lakemeta",
		Short: "Inspect and maintain the metadata of a lake table",
		Long: `lakemeta reads the snapshots, manifests and tags of a table on local disk or S3.
It plans scans, expires old snapshots and manages tags, garbage-collecting the
data files and manifests that nothing references any more.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "lakemeta.yaml", "config file; defaults apply when it does not exist")
	root.PersistentFlags().StringVar(&a.tablePath, "table", "", "local table root, overrides storage.path")
	root.PersistentFlags().BoolVar(&a.printMetrics, "print-metrics", false, "print collected counters after the command")

	root.AddCommand(newSnapshotsCmd(a))
	root.AddCommand(newPlanCmd(a))
	root.AddCommand(newExpireCmd(a))
	root.AddCommand(newTagCmd(a))
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.LoadConfig(a.cfgFile)
	if err != nil {
		return err
	}
	if a.tablePath != "" {
		cfg.Storage.Kind = "local"
		cfg.Storage.Path = a.tablePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer, err := createLogger(cfg.Logging)
	if err != nil {
		return err
	}
	if closer != nil {
		a.cleanup = append(a.cleanup, func() { _ = closer.Close() })
	}
	a.logger = logger

	tp, shutdown, err := initTracerProvider(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	a.cleanup = append(a.cleanup, shutdown)

	a.registry = prometheus.NewRegistry()
	hm := hooks.NewHookManager(logger)
	a.cleanup = append(a.cleanup, hm.Stop)

	t, err := openTable(ctx, cfg, hm, tp.Tracer("lakemeta"), metrics.New(a.registry), logger)
	if err != nil {
		return err
	}
	a.table = t
	return nil
}

// close runs the cleanups in reverse order of registration.
func (a *app) close(w io.Writer) {
	if a.printMetrics && a.registry != nil {
		if err := writeMetrics(w, a.registry); err != nil && a.logger != nil {
			a.logger.Warn("Failed to gather metrics.", "error", err)
		}
	}
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// writeMetrics prints every non-zero counter and histogram count.
func writeMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "METRIC\tLABELS\tVALUE")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += lp.GetName() + "=" + lp.GetValue() + " "
			}
			switch {
			case m.GetCounter() != nil:
				if v := m.GetCounter().GetValue(); v != 0 {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%g\n", mf.GetName(), labels, v)
				}
			case m.GetHistogram() != nil:
				if n := m.GetHistogram().GetSampleCount(); n != 0 {
					_, _ = fmt.Fprintf(tw, "%s_count\t%s\t%d\n", mf.GetName(), labels, n)
				}
			}
		}
	}
	return tw.Flush()
}
