package commands

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/c360studio/foreman/workflow"
)

func newPauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the plan after the current step",
		Long: `Pause signals a running orchestrator to stop after its current step.
State is preserved; 'foreman run --resume' continues the plan.

With no orchestrator running, the stored plan is marked paused directly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pausePlan()
		},
	}
}

func pausePlan() error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// A live run listens on the control subject. Delivery there is best
	// effort: when nothing is listening, marking the stored plan paused has
	// the same effect for the next run.
	if conn, err := nats.Connect(natsURL(cfg), nats.Name("foreman-pause")); err == nil {
		defer conn.Close()
		if err := conn.Publish(ControlSubjectPause, nil); err == nil {
			_ = conn.Flush()
			logger.Info("Pause request published")
		}
	}

	store := workflow.NewStore(logger)
	plan, err := store.Load(cfg.Repo.Path)
	if err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("no plan to pause")
	}
	if plan.Status != workflow.PlanActive {
		fmt.Printf("Plan is %s; nothing to pause.\n", plan.Status)
		return nil
	}

	plan.Status = workflow.PlanPaused
	if err := store.Save(cfg.Repo.Path, plan); err != nil {
		return err
	}
	fmt.Println("Plan paused. Continue with: foreman run --resume")
	return nil
}
