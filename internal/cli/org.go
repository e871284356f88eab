package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/suzieq/ceo-office/internal/org"
)

var hireCmd = &cobra.Command{
	Use:   "hire <department> [names...]",
	Short: "Create a department with its director and employees",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetString("slack-channel")
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd.Context(), func(a *app) error {
			team, err := a.builder.BuildOrGet(cmd.Context(), args[0], args[1:], channel)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), team)
			}
			printTeam(cmd.OutOrStdout(), team)
			return nil
		})
	},
}

var fireCmd = &cobra.Command{
	Use:   "fire <staff-id>",
	Short: "Deactivate a staff member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			m, err := a.builder.Deactivate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "Deactivated %s (%s)", m.Name, m.Role)
			return nil
		})
	},
}

var (
	rndCmd = &cobra.Command{
		Use:   "rnd",
		Short: "Research department utilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rndBootstrapCmd = &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the R&D department with a chief scientist and researchers",
		RunE: func(cmd *cobra.Command, args []string) error {
			size, _ := cmd.Flags().GetInt("size")
			return withApp(cmd.Context(), func(a *app) error {
				team, err := a.builder.BootstrapRnD(cmd.Context(), size)
				if err != nil {
					return err
				}
				printTeam(cmd.OutOrStdout(), team)
				return nil
			})
		},
	}
)

func init() {
	hireCmd.Flags().String("slack-channel", "", "Slack channel ID bound to a new department")
	hireCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	rndBootstrapCmd.Flags().Int("size", 3, fmt.Sprintf("Number of researchers (%d-%d)", org.MinRnDTeamSize, org.MaxRnDTeamSize))
	rndCmd.AddCommand(rndBootstrapCmd)
}

func printTeam(w io.Writer, team *org.Team) {
	printOK(w, "%s (%s)", team.Department.Name, team.Department.ID)
	fmt.Fprintf(w, "  Director: %s  %s\n", team.Director.Name, team.Director.AgentEndpointURL)
	for _, e := range team.Employees {
		fmt.Fprintf(w, "  %s  %s  %s\n", e.ID, e.Name, e.Role)
	}
}
