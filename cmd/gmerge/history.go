package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs, or the outcomes of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, err := a.openHistory()
			if err != nil {
				return err
			}
			defer hist.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				outcomes, err := hist.Outcomes(ctx, args[0])
				if err != nil {
					return err
				}
				if len(outcomes) == 0 {
					return fmt.Errorf("no outcomes for run %s", args[0])
				}
				t := newTable("Row", "Recipient", "Outcome", "Thread", "Detail")
				for _, o := range outcomes {
					detail := o.Reason
					if o.Error != "" {
						detail = o.Error
					}
					t.Row(strconv.Itoa(o.Row+1), o.Identifier, string(o.Kind), o.Correlation.ThreadID, detail)
				}
				fmt.Fprintln(out, t.Render())
				return nil
			}

			runs, err := hist.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs yet.")
				return nil
			}
			t := newTable("Run", "Started", "Mode", "Label", "Result")
			for _, r := range runs {
				t.Row(r.ID, r.Started().Local().Format("2006-01-02 15:04"), r.Mode, r.Label, r.Summary)
			}
			fmt.Fprintln(out, t.Render())

			last, err := hist.LastBackup(ctx)
			if err != nil {
				return err
			}
			if last != nil {
				fmt.Fprintf(out, "Last backup: %s\n", last.BackupLocation)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}
