package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/foreman/workflow"
)

func newStatusCommand() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current plan and task states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd, follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Re-render whenever the plan changes")

	return cmd
}

func showStatus(cmd *cobra.Command, follow bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := workflow.NewStore(slog.Default())

	render := func() error {
		plan, err := store.Load(cfg.Repo.Path)
		if err != nil {
			return err
		}
		if plan == nil {
			fmt.Println("No plan. Start one with: foreman run \"<goal>\"")
			return nil
		}
		fmt.Print(renderPlan(plan))
		return nil
	}

	if err := render(); err != nil {
		return err
	}
	if !follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	changes, err := workflow.WatchPlan(ctx, cfg.Repo.Path, slog.Default())
	if err != nil {
		return err
	}
	for range changes {
		fmt.Println("---")
		if err := render(); err != nil {
			return err
		}
	}
	return nil
}

// renderPlan formats the plan for the terminal.
func renderPlan(plan *workflow.Plan) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Goal:    %s\n", plan.Goal)
	fmt.Fprintf(&sb, "Status:  %s\n", plan.Status)
	fmt.Fprintf(&sb, "Updated: %s\n\n", plan.UpdatedAt.Format("2006-01-02 15:04:05"))

	for i := range plan.Tasks {
		t := &plan.Tasks[i]
		marker := " "
		if t.ID == plan.CurrentTaskID {
			marker = ">"
		}
		fmt.Fprintf(&sb, "%s %s %-40s %s", marker, t.Status.Glyph(), t.Title, t.Status)
		if t.Attempt > 0 {
			fmt.Fprintf(&sb, " (attempt %d/%d)", t.Attempt, t.EffectiveMaxAttempts())
		}
		sb.WriteString("\n")
		if t.Status == workflow.TaskRejected || t.Status == workflow.TaskFailed {
			for _, c := range t.LastComments {
				fmt.Fprintf(&sb, "      %s\n", c)
			}
		}
	}

	if plan.FinalReport != "" {
		fmt.Fprintf(&sb, "\n%s\n", plan.FinalReport)
	}
	return sb.String()
}
