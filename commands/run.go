package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/c360studio/foreman/config"
	"github.com/c360studio/foreman/executor"
	"github.com/c360studio/foreman/llm"
	"github.com/c360studio/foreman/notify"
	"github.com/c360studio/foreman/planner"
	"github.com/c360studio/foreman/session"
	"github.com/c360studio/foreman/workflow"
)

func newRunCommand() *cobra.Command {
	var (
		resume bool
		fresh  bool
		docs   []string
	)

	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Run a plan for a goal",
		Long: `Run decomposes the goal into tasks and drives them to completion.

When a plan already exists for the project, choose what to do with it:
  --resume    continue the existing plan (implicit with workflow.auto_resume)
  --new       archive the existing plan and start fresh from the goal`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := ""
			if len(args) > 0 {
				goal = strings.TrimSpace(args[0])
			}
			return runPlan(cmd.Context(), goal, resume, fresh, docs)
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "Continue the existing plan")
	cmd.Flags().BoolVar(&fresh, "new", false, "Archive any existing plan and start fresh")
	cmd.Flags().StringArrayVar(&docs, "doc", nil, "Context document to include in planning (repeatable)")

	return cmd
}

func runPlan(parent context.Context, goal string, resume, fresh bool, docPaths []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := workflow.NewStore(logger)
	plan, err := resolvePlan(ctx, cfg, store, goal, resume, fresh, docPaths, logger)
	if err != nil {
		return err
	}

	backend, err := executor.NewNATSBackend(natsURL(cfg), logger)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	notifier, closeNotifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	oracle := planner.NewOracle(newLLMClient(cfg, logger))
	developer := executor.NewDevelopClient(backend, executor.AllowList(cfg.Executor.Allowlist), logger)
	reviewer := executor.NewReviewClient(backend, executor.RetryConfig{MaxRetries: cfg.Executor.MaxRetries}, logger)

	orch := workflow.NewOrchestrator(store, developer, reviewer, oracle, notifier, workflow.Options{
		DevelopTimeout:  cfg.Workflow.DevelopTimeout,
		ReviewTimeout:   cfg.Workflow.ReviewTimeout,
		ReportTimeout:   cfg.Workflow.ReportTimeout,
		ReportTailBytes: cfg.Workflow.ReportTailBytes,
	}, logger)

	stopPause, err := watchPauseRequests(cfg, orch, logger)
	if err != nil {
		logger.Warn("Pause control unavailable", "error", err)
	} else {
		defer stopPause()
	}

	// One serialized unit per project: a second run against the same project
	// queues behind the first instead of racing it on the plan file.
	controller := session.NewController(planInterrupter(store, cfg.Repo.Path, developer), logger)

	// SIGINT stops the run through the controller so the abort path fires and
	// the delegated operation is told to stop, not merely orphaned.
	go func() {
		<-ctx.Done()
		ictx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := controller.Interrupt(ictx, cfg.Repo.Path); err != nil {
			logger.Warn("Interrupt did not finish cleanly", "error", err)
		}
	}()

	var runErr error
	err = controller.Submit(cfg.Repo.Path, session.Unit{
		ID: plan.ID,
		Run: func(unitCtx context.Context) error {
			runErr = orch.Run(unitCtx, cfg.Repo.Path, plan)
			return runErr
		},
	})
	if err != nil {
		return err
	}
	controller.Wait()

	if runErr != nil {
		return runErr
	}
	printPlanSummary(plan)
	return nil
}

// resolvePlan loads or creates the plan to run, honoring the resume/new
// choice for an existing one.
func resolvePlan(ctx context.Context, cfg *config.Config, store *workflow.Store, goal string, resume, fresh bool, docPaths []string, logger *slog.Logger) (*workflow.Plan, error) {
	existing, err := store.Load(cfg.Repo.Path)
	if err != nil {
		return nil, err
	}

	if existing != nil && !fresh {
		if existing.Status.IsTerminal() {
			return nil, fmt.Errorf("plan is already %s; use --new to start over or 'foreman reset' to archive it", existing.Status)
		}
		if resume || cfg.Workflow.AutoResume || goal == "" {
			logger.Info("Resuming existing plan", "plan_id", existing.ID, "goal", existing.Goal)
			existing.Status = workflow.PlanActive
			return existing, nil
		}
		return nil, fmt.Errorf("a plan already exists for %q; pass --resume to continue it or --new to archive it and start fresh", existing.Goal)
	}

	if existing != nil && fresh {
		if err := store.Archive(cfg.Repo.Path, string(existing.Status)); err != nil {
			return nil, err
		}
	}

	if goal == "" {
		return nil, fmt.Errorf("a goal is required to start a new plan")
	}

	docs, err := ingestDocs(docPaths)
	if err != nil {
		return nil, err
	}

	client := newLLMClient(cfg, logger)
	dctx, cancel := context.WithTimeout(ctx, cfg.Model.Timeout)
	defer cancel()

	plan, err := planner.NewPlanner(client, logger).Decompose(dctx, goal, docs)
	if err != nil {
		return nil, err
	}
	if cfg.Workflow.MaxAttempts > 0 {
		for i := range plan.Tasks {
			plan.Tasks[i].MaxAttempts = cfg.Workflow.MaxAttempts
		}
	}

	logger.Info("Plan created", "plan_id", plan.ID, "tasks", len(plan.Tasks))
	return plan, nil
}

func ingestDocs(paths []string) ([]planner.Document, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	ingester := planner.NewIngester()
	docs := make([]planner.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := ingester.IngestFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func newLLMClient(cfg *config.Config, logger *slog.Logger) *llm.Client {
	opts := []llm.ClientOption{llm.WithLogger(logger)}
	if cfg.Model.APIKey != "" {
		opts = append(opts, llm.WithAPIKey(cfg.Model.APIKey))
	}
	return llm.NewClient(cfg.Model.Endpoint, cfg.Model.Name, opts...)
}

func natsURL(cfg *config.Config) string {
	if cfg.NATS.URL != "" {
		return cfg.NATS.URL
	}
	return nats.DefaultURL
}

// buildNotifier fans events out to the log and, when configured, to NATS.
func buildNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, func(), error) {
	logNotifier := notify.NewLogNotifier(logger)
	if cfg.NATS.URL == "" {
		return logNotifier, func() {}, nil
	}

	natsNotifier, err := notify.NewNATSNotifier(cfg.NATS.URL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect event publisher: %w", err)
	}
	return notify.Fanout{logNotifier, natsNotifier}, natsNotifier.Close, nil
}

// watchPauseRequests subscribes to the pause control subject so a separate
// 'foreman pause' invocation can stop this run after its current step.
func watchPauseRequests(cfg *config.Config, orch *workflow.Orchestrator, logger *slog.Logger) (func(), error) {
	conn, err := nats.Connect(natsURL(cfg), nats.Name("foreman-control"))
	if err != nil {
		return nil, err
	}
	sub, err := conn.Subscribe(ControlSubjectPause, func(msg *nats.Msg) {
		logger.Info("Pause requested")
		orch.Pause()
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return func() {
		_ = sub.Unsubscribe()
		conn.Close()
	}, nil
}

// taskInterrupter aborts delegated work for one task.
type taskInterrupter interface {
	Interrupt(ctx context.Context, taskID string) error
}

// planInterrupter builds the controller's abort callback. The unit ID is the
// plan's, but the interrupt protocol keys on task IDs, so the callback reads
// the persisted plan to find which task is actually in flight.
func planInterrupter(store *workflow.Store, projectPath string, dev taskInterrupter) session.AbortFunc {
	return func(ctx context.Context, _ string) error {
		plan, err := store.Load(projectPath)
		if err != nil || plan == nil || plan.CurrentTaskID == "" {
			return err
		}
		return dev.Interrupt(ctx, plan.CurrentTaskID)
	}
}

func printPlanSummary(plan *workflow.Plan) {
	fmt.Printf("\nPlan %s: %s\n", plan.Status, plan.Goal)
	for i := range plan.Tasks {
		t := &plan.Tasks[i]
		fmt.Printf("  %s %s (%s, attempts %d/%d)\n",
			t.Status.Glyph(), t.Title, t.Status, t.Attempt, t.EffectiveMaxAttempts())
	}
	if plan.FinalReport != "" {
		fmt.Printf("\n%s\n", plan.FinalReport)
	}
}
