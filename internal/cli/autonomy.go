package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/suzieq/ceo-office/internal/autonomy"
	"github.com/suzieq/ceo-office/internal/store"
)

var (
	goalCmd = &cobra.Command{
		Use:   "goal",
		Short: "Manage autonomy goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	goalAddCmd = &cobra.Command{
		Use:   "add <title>",
		Short: "Add an active goal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, _ := cmd.Flags().GetString("description")
			priority, _ := cmd.Flags().GetInt("priority")
			return withApp(cmd.Context(), func(a *app) error {
				g, err := a.policies.AddGoal(cmd.Context(), strings.Join(args, " "), desc, priority)
				if err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "Goal %s [P%d] %s", g.ID, g.Priority, g.Title)
				return nil
			})
		},
	}

	goalListCmd = &cobra.Command{
		Use:   "list",
		Short: "List active goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withApp(cmd.Context(), func(a *app) error {
				goals, err := a.policies.ActiveGoals(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, goals)
				}
				if len(goals) == 0 {
					fmt.Fprintln(out, "No active goals.")
				}
				for _, g := range goals {
					fmt.Fprintf(out, "%s  [P%d] %s\n", g.ID, g.Priority, g.Title)
				}
				return nil
			})
		},
	}

	goalDoneCmd = &cobra.Command{
		Use:   "done <goal-id>",
		Short: "Mark a goal done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.policies.SetGoalStatus(cmd.Context(), args[0], store.GoalDone); err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "Goal %s done", args[0])
				return nil
			})
		},
	}
)

var (
	taskCmd = &cobra.Command{
		Use:   "task",
		Short: "Manage the autonomy task queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	taskAddCmd = &cobra.Command{
		Use:   "add <title>",
		Short: "Queue a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := autonomy.TaskInput{Title: strings.Join(args, " ")}
			in.Details, _ = cmd.Flags().GetString("details")
			in.Department, _ = cmd.Flags().GetString("department")
			in.Tool, _ = cmd.Flags().GetString("tool")
			in.Importance, _ = cmd.Flags().GetInt("importance")
			payload, _ := cmd.Flags().GetString("payload")
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("--payload must be a JSON object")
				}
				in.Payload = json.RawMessage(payload)
			}
			return withApp(cmd.Context(), func(a *app) error {
				t, err := a.policies.AddTask(cmd.Context(), in)
				if err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "Task %s queued (%s)", t.ID, t.Tool)
				return nil
			})
		},
	}

	taskListCmd = &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			return withApp(cmd.Context(), func(a *app) error {
				tasks, err := a.policies.Tasks(cmd.Context(), status, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, tasks)
				}
				if len(tasks) == 0 {
					fmt.Fprintln(out, "No tasks.")
				}
				for _, t := range tasks {
					fmt.Fprintf(out, "%s  %-7s %s (%s)\n", t.ID, t.Status, t.Title, t.Tool)
				}
				return nil
			})
		},
	}
)

var (
	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Show or change the autonomy policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	policyShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show the current policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				p, err := a.policies.Get(cmd.Context())
				if err != nil {
					return err
				}
				printPolicy(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}

	policyModeCmd = &cobra.Command{
		Use:   "mode <off|approvals|autopilot>",
		Short: "Set the autonomy mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				p, err := a.policies.SetMode(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printPolicy(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}

	policySetCmd = &cobra.Command{
		Use:   "set",
		Short: "Change policy fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch autonomy.PolicyPatch
			flags := cmd.Flags()
			if flags.Changed("risk") {
				v, _ := flags.GetInt("risk")
				patch.RiskTolerance = &v
			}
			if flags.Changed("auto-delegate") {
				v, _ := flags.GetBool("auto-delegate")
				patch.AutoDelegate = &v
			}
			if flags.Changed("max-parallel") {
				v, _ := flags.GetInt("max-parallel")
				patch.MaxParallelTasks = &v
			}
			if flags.Changed("mode") {
				v, _ := flags.GetString("mode")
				patch.Mode = &v
			}
			return withApp(cmd.Context(), func(a *app) error {
				p, err := a.policies.SetPolicy(cmd.Context(), patch)
				if err != nil {
					return err
				}
				printPolicy(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
)

var (
	kpiCmd = &cobra.Command{
		Use:   "kpi",
		Short: "Record business signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	kpiRecordCmd = &cobra.Command{
		Use:   "record <name> <value>",
		Short: "Record a KPI value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}
			unit, _ := cmd.Flags().GetString("unit")
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.policies.RecordKPI(cmd.Context(), args[0], value, unit); err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "Recorded %s = %g%s", args[0], value, unit)
				return nil
			})
		},
	}
)

func init() {
	goalAddCmd.Flags().String("description", "", "Goal description")
	goalAddCmd.Flags().Int("priority", 3, "Priority 1-5")
	goalListCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	goalCmd.AddCommand(goalAddCmd, goalListCmd, goalDoneCmd)

	taskAddCmd.Flags().String("details", "", "Task details")
	taskAddCmd.Flags().String("department", "", "Department to delegate to")
	taskAddCmd.Flags().String("tool", "agent", "Tool: agent or web_ingest")
	taskAddCmd.Flags().String("payload", "", "Tool payload as JSON")
	taskAddCmd.Flags().Int("importance", 3, "Importance 1-5")
	taskListCmd.Flags().String("status", "", "Filter by status")
	taskListCmd.Flags().Int("limit", 20, "Maximum tasks")
	taskListCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	taskCmd.AddCommand(taskAddCmd, taskListCmd)

	policySetCmd.Flags().String("mode", "", "Mode: off, approvals or autopilot")
	policySetCmd.Flags().Int("risk", 2, "Risk tolerance 1-5")
	policySetCmd.Flags().Bool("auto-delegate", false, "Delegate tasks without asking")
	policySetCmd.Flags().Int("max-parallel", 3, "Maximum tasks planned per tick")
	policyCmd.AddCommand(policyShowCmd, policyModeCmd, policySetCmd)

	kpiRecordCmd.Flags().String("unit", "", "Unit, e.g. usd")
	kpiCmd.AddCommand(kpiRecordCmd)
}

func printPolicy(w io.Writer, p store.AutonomyPolicy) {
	fmt.Fprintf(w, "Mode: %s\nRisk tolerance: %d\nAuto delegate: %t\nMax parallel tasks: %d\n",
		p.Mode, p.RiskTolerance, p.AutoDelegate, p.MaxParallelTasks)
}
