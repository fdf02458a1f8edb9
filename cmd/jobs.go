package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/dispatcher"
	"github.com/openpolitica/proyectos-ley/internal/worker"
)

func newJobCmd(opts *rootOptions, mode worker.Mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode) + " [era...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(cmd, opts, mode, args)
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	cmd := newJobCmd(opts, worker.ModeRun,
		"List, extract and load the selected eras straight into their databases")
	cmd.Flags().BoolVar(&opts.cache, "cache", false, "also write the JSON cache (overrides cache.on_run)")
	return cmd
}

func runJobs(cmd *cobra.Command, opts *rootOptions, mode worker.Mode, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if addr := opts.cfg.Metrics.Addr; addr != "" {
		appInstance.StartHTTP(addr)
	}

	names := append(append([]string(nil), opts.eras...), args...)
	results, err := appInstance.RunEras(cmd.Context(), mode, names)
	if err != nil {
		return err
	}
	writeSummary(cmd.OutOrStdout(), results)

	failed := dispatcher.Failed(results)
	for _, res := range failed {
		appInstance.Logger().Error("era failed",
			zap.Stringer("era", res.Era),
			zap.String("mode", string(mode)),
			zap.Error(res.Err),
		)
	}
	if len(failed) > 0 && opts.strict {
		return fmt.Errorf("%d of %d eras failed", len(failed), len(results))
	}
	return nil
}

func writeSummary(w io.Writer, results []worker.EraResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Era", "Mode", "References", "Bills", "Soft misses", "Failed", "Output", "Result"})
	for _, res := range results {
		result := "ok"
		if !res.OK() {
			result = res.Error
		}
		t.AppendRow(table.Row{
			res.Era.String(), res.Mode, res.References, res.Bills, res.SoftMisses, len(res.Failed), res.Output, result,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
