package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openpolitica/proyectos-ley/internal/era"
	"github.com/openpolitica/proyectos-ley/internal/storage/sqlite"
)

func newErasCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "eras [era...]",
		Short: "Print the era table, artifact names and database status",
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			selected, err := era.Select(appInstance.Eras(), append(append([]string(nil), opts.eras...), args...))
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Era", "Adapter", "Page size", "Cache", "Database", "Bills"})
			for _, e := range selected {
				pageSize := fmt.Sprint(e.PageSize)
				if !e.Paged() {
					pageSize = "single"
				}
				bills := "-"
				if path := appInstance.DatabasePath(e.Period); sqlite.Exists(path) {
					summary, err := sqlite.Inspect(cmd.Context(), path)
					if err != nil {
						bills = "unreadable"
					} else {
						bills = fmt.Sprint(summary.Bills)
					}
				}
				t.AppendRow(table.Row{
					e.Period.String(), e.Adapter, pageSize, e.CacheName(), appInstance.DatabasePath(e.Period), bills,
				})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
}
