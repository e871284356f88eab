package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/store"
)

var rememberCmd = &cobra.Command{
	Use:   "remember <text>",
	Short: "Store a note in long-term memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		importance, _ := cmd.Flags().GetInt("importance")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		dept, _ := cmd.Flags().GetString("department")
		return withApp(cmd.Context(), func(a *app) error {
			m, err := a.memory.Remember(cmd.Context(), memory.RememberInput{
				Content:    strings.Join(args, " "),
				Tags:       tags,
				Importance: importance,
				Source:     "cli",
				Department: dept,
			})
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "Remembered (importance %d)", m.Importance)
			return nil
		})
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search long-term memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ranked, _ := cmd.Flags().GetBool("ranked")
		dept, _ := cmd.Flags().GetString("department")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		query := strings.Join(args, " ")
		return withApp(cmd.Context(), func(a *app) error {
			var (
				matches []store.MemoryMatch
				err     error
			)
			if ranked {
				opts := a.memory.ChatOptions()
				if dept != "" {
					opts = a.memory.AgentOptions(dept)
				}
				if limit > 0 {
					opts.Limit = limit
				}
				matches, err = a.memory.RecallRanked(cmd.Context(), query, opts)
			} else {
				opts := a.memory.ChatOptions().Options
				opts.Department = dept
				if limit > 0 {
					opts.Limit = limit
				}
				matches, err = a.memory.Recall(cmd.Context(), query, opts)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, matches)
			}
			if len(matches) == 0 {
				fmt.Fprintln(out, "No matching memories.")
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(out, "%.3f  [%d] %s\n", m.Score, m.Importance, m.Content)
			}
			return nil
		})
	},
}

func init() {
	rememberCmd.Flags().Int("importance", 0, "Importance 1-5 (0 asks the brain)")
	rememberCmd.Flags().StringSlice("tag", nil, "Tag (repeatable)")
	rememberCmd.Flags().String("department", "", "Department scope")

	recallCmd.Flags().Bool("ranked", false, "Weight by importance and recency")
	recallCmd.Flags().String("department", "", "Department scope")
	recallCmd.Flags().Int("limit", 0, "Maximum matches")
	recallCmd.Flags().Bool("json", false, "Output machine-readable JSON")
}
