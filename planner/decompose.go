// Package planner turns a goal into an executable plan: it decomposes the
// goal into dependent tasks via the language model, attaches an optional
// project analysis, and ingests supporting documents as planning context.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/foreman/llm"
	"github.com/c360studio/foreman/workflow"
)

// Completer is the language-model dependency. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Planner decomposes goals into plans.
type Planner struct {
	llm    Completer
	logger *slog.Logger
}

// NewPlanner creates a planner backed by the given completer.
func NewPlanner(completer Completer, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{llm: completer, logger: logger}
}

const decomposeSystemPrompt = `You are a technical project planner. Decompose the goal into a small set of concrete, independently reviewable tasks.

Respond with a JSON object:
{
  "analysis": {
    "current_state": "one paragraph",
    "already_done": ["..."],
    "remaining_work": ["..."]
  },
  "tasks": [
    {
      "id": "task-1",
      "title": "short imperative title",
      "description": "what to do and how to know it is done",
      "acceptance_criteria": ["..."],
      "depends_on": ["task ids this depends on"]
    }
  ]
}

Order tasks so that dependencies come before dependents. Keep the list short; prefer fewer, larger tasks over many trivial ones.`

// Decompose asks the model to break the goal into tasks and builds a fresh
// plan. Context documents, when present, are appended to the prompt. A
// response with no extractable JSON falls back to a single-task plan covering
// the whole goal, so planning never hard-fails on a chatty model.
func (p *Planner) Decompose(ctx context.Context, goal string, docs []Document) (*workflow.Plan, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("goal is required")
	}

	resp, err := p.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: decomposeSystemPrompt},
			{Role: "user", Content: decomposeUserPrompt(goal, docs)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decompose goal: %w", err)
	}

	payload, err := llm.ExtractObject(resp.Content)
	if err != nil {
		if errors.Is(err, llm.ErrNoJSON) {
			p.logger.Warn("Decomposition response contained no JSON, using single-task plan",
				"content_length", len(resp.Content))
			return p.fallbackPlan(goal), nil
		}
		return nil, fmt.Errorf("extract decomposition: %w", err)
	}

	plan, err := buildPlan(goal, payload)
	if err != nil {
		p.logger.Warn("Decomposition payload unusable, using single-task plan", "error", err)
		return p.fallbackPlan(goal), nil
	}
	return plan, nil
}

func decomposeUserPrompt(goal string, docs []Document) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n", goal)
	for _, doc := range docs {
		fmt.Fprintf(&sb, "\n--- Context document: %s ---\n%s\n", doc.Name, doc.Content)
	}
	return sb.String()
}

// decompositionPayload is the expected shape of the model's response. Tasks
// with missing fields are repaired rather than rejected.
type decompositionPayload struct {
	Analysis *workflow.Analysis `json:"analysis"`
	Tasks    []struct {
		ID                 string   `json:"id"`
		Title              string   `json:"title"`
		Description        string   `json:"description"`
		AcceptanceCriteria []string `json:"acceptance_criteria"`
		DependsOn          []string `json:"depends_on"`
	} `json:"tasks"`
}

// buildPlan converts the extracted JSON into a plan, repairing missing IDs
// and titles and dropping dependency references to unknown tasks.
func buildPlan(goal, payload string) (*workflow.Plan, error) {
	var parsed decompositionPayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("parse decomposition: %w", err)
	}
	if len(parsed.Tasks) == 0 {
		return nil, fmt.Errorf("decomposition contained no tasks")
	}

	now := time.Now().UTC()
	plan := &workflow.Plan{
		ID:        uuid.NewString(),
		Goal:      goal,
		Analysis:  parsed.Analysis,
		Status:    workflow.PlanActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	known := make(map[string]bool, len(parsed.Tasks))
	for i, t := range parsed.Tasks {
		id := strings.TrimSpace(t.ID)
		if id == "" || known[id] {
			id = fmt.Sprintf("task-%d", i+1)
		}
		known[id] = true

		title := strings.TrimSpace(t.Title)
		if title == "" {
			title = fmt.Sprintf("Task %d", i+1)
		}

		plan.Tasks = append(plan.Tasks, workflow.Task{
			ID:                 id,
			Title:              title,
			Description:        t.Description,
			AcceptanceCriteria: t.AcceptanceCriteria,
			DependsOn:          t.DependsOn,
			Status:             workflow.TaskPending,
			MaxAttempts:        workflow.DefaultMaxAttempts,
		})
	}

	// Dependencies on unknown tasks would never be satisfied; drop them here
	// rather than letting the scheduler treat the task as permanently unready.
	for i := range plan.Tasks {
		deps := plan.Tasks[i].DependsOn[:0]
		for _, dep := range plan.Tasks[i].DependsOn {
			if known[dep] {
				deps = append(deps, dep)
			}
		}
		plan.Tasks[i].DependsOn = deps
	}

	return plan, nil
}

// fallbackPlan wraps the whole goal in one task.
func (p *Planner) fallbackPlan(goal string) *workflow.Plan {
	now := time.Now().UTC()
	return &workflow.Plan{
		ID:        uuid.NewString(),
		Goal:      goal,
		Status:    workflow.PlanActive,
		CreatedAt: now,
		UpdatedAt: now,
		Tasks: []workflow.Task{{
			ID:          "task-1",
			Title:       goal,
			Description: goal,
			Status:      workflow.TaskPending,
			MaxAttempts: workflow.DefaultMaxAttempts,
		}},
	}
}
