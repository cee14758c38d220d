package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/c360studio/foreman/workflow"
)

func newResetCommand() *cobra.Command {
	var discard bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Archive the current plan and clear the slate",
		Long: `Reset archives the current plan file under its status label, then removes
the canonical plan so the next run starts fresh. With --discard the plan is
deleted without archiving.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resetPlan(discard)
		},
	}

	cmd.Flags().BoolVar(&discard, "discard", false, "Delete the plan without archiving")

	return cmd
}

func resetPlan(discard bool) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := workflow.NewStore(logger)
	plan, err := store.Load(cfg.Repo.Path)
	if err != nil {
		return err
	}
	if plan == nil {
		fmt.Println("No plan to reset.")
		return nil
	}

	if discard {
		if err := store.Delete(cfg.Repo.Path); err != nil {
			return err
		}
		fmt.Println("Plan discarded.")
		return nil
	}

	if err := store.Archive(cfg.Repo.Path, string(plan.Status)); err != nil {
		return err
	}
	fmt.Printf("Plan archived under its %s status.\n", plan.Status)
	return nil
}
