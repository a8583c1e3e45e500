package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/N-O-S-T/FactoryTestApp/internal/audit"
	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/logging"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "sequencer",
		Short:         "Fixture test sequencer",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $FIXTURE_CONFIG or "+defaultConfigPath+")")

	load := func() (*config.Config, *logging.Logger, error) {
		path := getConfigPath(configPath)
		cfg, err := config.Load(path)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
		log := logging.New(cfg.Logging, version)
		log.Info("configuration loaded", "path", path, "station", cfg.Station.ID)
		return cfg, log, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newRunCmd(load),
		newOpsCmd(),
	)
	return root
}

type loadFunc func() (*config.Config, *logging.Logger, error)

func newServeCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the operator API and accept MQTT commands until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func newRunCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "run <operation>...",
		Short: "Run operations in order and print the slot records",
		Example: "  sequencer run full-cycle\n" +
			"  sequencer run open-clients detect check-ain",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			return runOperations(cmd.Context(), cfg, log, args, cmd.OutOrStdout())
		},
	}
}

func newOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List the operations in menu order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seq := sequencer.New(&sequencer.Fixture{}, dut.NewRegistry(), nil, sequencer.Config{}, sequencer.Options{})
			return printOperations(cmd.OutOrStdout(), seq.Operations())
		},
	}
}

// runOperations executes each named operation in turn. It stops at the
// first operation that returns an error.
func runOperations(ctx context.Context, cfg *config.Config, log *logging.Logger, ops []string, out io.Writer) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, op := range ops {
		a.record(ctx, audit.ActionOperationStart, op, audit.SourceCLI)
		if err := a.station.Run(ctx, op); err != nil {
			printSlots(out, a.station.Slots())
			return fmt.Errorf("operation %s: %w", op, err)
		}
		log.Success("operation complete", "operation", op)
	}

	printSlots(out, a.station.Slots())
	stats := a.session.Stats()
	fmt.Fprintf(out, "\npassed %d, failed %d\n", stats.Passed, stats.Failed)
	return nil
}

func printOperations(w io.Writer, ops []sequencer.Operation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tLABEL")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%s\n", op.Slug, op.Label)
	}
	return tw.Flush()
}

func printSlots(w io.Writer, recs []dut.Record) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tSTATE\tCHIP ID\tAIN\tDALI\tRTC\tRADIO\tACCEL\tERRORS")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.Slot, r.State, r.ChipID,
			mark(r.VoltageChecked), mark(r.DALIChecked), mark(r.RTCChecked),
			mark(r.RadioChecked), mark(r.AccelChecked), len(r.Errors))
	}
	tw.Flush() //nolint:errcheck // Console output
}

func mark(ok bool) string {
	if ok {
		return "ok"
	}
	return "-"
}
