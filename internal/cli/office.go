package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one autonomy cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd.Context(), func(a *app) error {
			res, err := a.office.Tick(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, res)
			}
			if res.Skipped != "" {
				fmt.Fprintf(out, "Tick skipped: %s\n", res.Skipped)
				return nil
			}
			fmt.Fprintf(out, "Mode: %s\nPlanned: %d\n", res.Mode, len(res.Planned))
			for _, t := range res.Executed {
				status := color.GreenString(t.Status)
				if t.Error != "" {
					status = color.RedString(t.Status)
				}
				fmt.Fprintf(out, "  [%s] %s (%s)\n", status, t.Title, t.Tool)
			}
			if res.Summary != "" {
				fmt.Fprintf(out, "\n%s\n", res.Summary)
			}
			return nil
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compile and send the daily report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			report, err := a.office.DailyReport(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		})
	},
}

func init() {
	tickCmd.Flags().Bool("json", false, "Output machine-readable JSON")
}
