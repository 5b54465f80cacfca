package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/animus-labs/runledger/internal/api"
	"github.com/animus-labs/runledger/internal/catalog"
	"github.com/animus-labs/runledger/internal/domain"
)

const maxColWidth = 80

func newListCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all indexed runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, env, func(ctx context.Context, s *Session) error {
				plans, err := s.Runs.List(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(env.Out, runTable(plans))
				return nil
			})
		},
	}
}

func newShowCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its step DAG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, env, func(ctx context.Context, s *Session) error {
				plan, err := s.Runs.Get(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(env.Out, runDetails(plan))
				fmt.Fprint(env.Out, stepTree(plan))
				return nil
			})
		},
	}
}

func newExistsCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <run-id>",
		Short: "Report whether a run is indexed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, env, func(ctx context.Context, s *Session) error {
				exists, err := s.Runs.Exists(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(env.Out, exists)
				return nil
			})
		},
	}
}

func newDeleteCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run with its documents and output files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, env, func(ctx context.Context, s *Session) error {
				if err := s.Runs.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newPurgeCmd(env Env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every run and the master index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("purge deletes every run; pass --yes to confirm")
			}
			return withSession(cmd, env, func(ctx context.Context, s *Session) error {
				if err := s.Runs.Purge(ctx); err != nil {
					return err
				}
				fmt.Fprintln(env.Out, "purged all runs")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion of every run")
	return cmd
}

func newRepairCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <run-id>",
		Short: "Reconcile the index entry of a run with its detail record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, env, func(ctx context.Context, s *Session) error {
				outcome, err := s.Runs.Repair(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "%s %s\n", args[0], outcome)
				return nil
			})
		},
	}
}

func newSubmitCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <template.yaml>",
		Short: "Plan a seed template and start tracking the run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := afero.ReadFile(env.Fs, args[0])
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			seed, err := catalog.ParseTemplate(raw)
			if err != nil {
				return err
			}
			return withSession(cmd, env, func(ctx context.Context, s *Session) error {
				plan, err := s.Runs.Submit(ctx, seed)
				if err != nil {
					return err
				}
				fmt.Fprintln(env.Out, plan.ID)
				return nil
			})
		},
	}
}

func newRePlanCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "replan <run-id>",
		Short: "Re-plan a run from its seeded template and append new steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, env, func(ctx context.Context, s *Session) error {
				plan, err := s.Runs.RePlan(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(env.Out, runDetails(plan))
				if plan.Info != nil && plan.Info.Status == domain.StatusFailure {
					return fmt.Errorf("replan of %s failed: %s", args[0], lastLogLine(plan.Info.Log))
				}
				return nil
			})
		},
	}
}

func newServeCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run monitoring HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Serve == nil {
				return errors.New("no http server configured")
			}
			return withSession(cmd, env, func(ctx context.Context, s *Session) error {
				return env.Serve(ctx, api.NewHandler(env.Logger, s.Runs, api.Options{
					Checks:        s.Checks,
					Authenticator: env.Authenticator,
				}))
			})
		},
	}
}

func runTable(plans []*domain.RuntimePlan) string {
	table := uitable.New()
	table.AddRow("RUN", "STATUS", "STARTED", "ENDED")
	for _, plan := range plans {
		status, started, ended := string(domain.StatusQueued), "-", "-"
		if plan.Info != nil {
			status = string(plan.Info.Status)
			started = formatTime(plan.Info.StartTime)
			ended = formatTime(plan.Info.EndTime)
		}
		table.AddRow(plan.ID, status, started, ended)
	}
	return table.String()
}

func runDetails(plan *domain.RuntimePlan) string {
	info := plan.Info
	if info == nil {
		info = domain.NewRuntimeInfo()
	}
	table := uitable.New()
	table.MaxColWidth = maxColWidth
	table.Wrap = true
	table.AddRow("Run:", plan.ID)
	table.AddRow("Status:", string(info.Status))
	table.AddRow("Started:", formatTime(info.StartTime))
	table.AddRow("Ended:", formatTime(info.EndTime))
	table.AddRow("Template:", orDash(plan.OriginalTemplateID))
	table.AddRow("Seeded:", orDash(plan.SeededTemplateID))
	table.AddRow("Expanded:", orDash(plan.ExpandedTemplateID))
	table.AddRow("Plan:", orDash(plan.ExecutionPlanID))
	if line := lastLogLine(info.Log); line != "" {
		table.AddRow("Last log:", line)
	}
	return table.String()
}

// stepTree renders the step DAG. A step hangs under its first parent; its
// other parents are listed next to it.
func stepTree(plan *domain.RuntimePlan) string {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("%s (%d steps)", domain.LocalName(plan.ID), plan.Queue.Len()))

	children := map[string][]*domain.RuntimeStep{}
	var roots []*domain.RuntimeStep
	for _, step := range plan.Queue.Steps() {
		if len(step.Parents) == 0 {
			roots = append(roots, step)
			continue
		}
		first := step.Parents[0].ID
		children[first] = append(children[first], step)
	}

	var add func(branch treeprint.Tree, step *domain.RuntimeStep)
	add = func(branch treeprint.Tree, step *domain.RuntimeStep) {
		node := branch.AddBranch(stepLabel(step))
		for _, child := range children[step.ID] {
			add(node, child)
		}
	}
	for _, root := range roots {
		add(tree, root)
	}
	return tree.String()
}

func stepLabel(step *domain.RuntimeStep) string {
	status := domain.StatusQueued
	if step.Info != nil {
		status = step.Info.Status
	}
	label := fmt.Sprintf("%s [%s]", domain.LocalName(step.ID), status)
	if len(step.Parents) > 1 {
		others := make([]string, 0, len(step.Parents)-1)
		for _, p := range step.Parents[1:] {
			others = append(others, domain.LocalName(p.ID))
		}
		label += " (also after " + strings.Join(others, ", ") + ")"
	}
	return label
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func lastLogLine(log string) string {
	lines := strings.Split(strings.TrimRight(log, "\n"), "\n")
	return lines[len(lines)-1]
}
