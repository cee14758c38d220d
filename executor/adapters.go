package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/foreman/workflow"
)

// DevelopClient adapts a Backend to the orchestrator's Developer interface.
// Development calls are not retried here: the orchestrator's attempt budget
// already covers failures, and a long-running development call is too
// expensive to repeat blindly.
type DevelopClient struct {
	backend Backend
	allowed AllowList
	logger  *slog.Logger
}

// NewDevelopClient wires a development collaborator.
func NewDevelopClient(backend Backend, allowed AllowList, logger *slog.Logger) *DevelopClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &DevelopClient{backend: backend, allowed: allowed, logger: logger}
}

// Develop runs one development attempt and returns the collaborator's report.
func (c *DevelopClient) Develop(ctx context.Context, req workflow.DevelopRequest) (string, error) {
	resp, err := c.backend.Execute(ctx, Request{
		TaskID:         req.TaskID,
		Goal:           developGoal(req),
		Context:        req.Context,
		AllowedActions: c.allowed,
		OutputHints:    []string{"report"},
		Deadline:       req.Deadline,
		Profile:        ProfileDevelop,
	})
	if err != nil {
		return "", err
	}
	c.auditActions(req.TaskID, resp)

	switch resp.Status {
	case StatusOK:
		return reportText(resp), nil
	case StatusNeedsInput:
		return "", fmt.Errorf("development needs input: %s", strings.Join(resp.Questions, "; "))
	default:
		return "", fmt.Errorf("development failed: %s", resp.Summary)
	}
}

// Interrupt passes the abort signal through to the backend.
func (c *DevelopClient) Interrupt(ctx context.Context, taskID string) error {
	return c.backend.Interrupt(ctx, taskID)
}

func developGoal(req workflow.DevelopRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Implement task: %s\n\n%s\n", req.Title, req.Description)
	if len(req.AcceptanceCriteria) > 0 {
		sb.WriteString("\nAcceptance criteria:\n")
		for _, ac := range req.AcceptanceCriteria {
			fmt.Fprintf(&sb, "- %s\n", ac)
		}
	}
	if req.Goal != "" {
		fmt.Fprintf(&sb, "\nOverall goal: %s\n", req.Goal)
	}
	return sb.String()
}

// auditActions logs any action outside the allow-list. The collaborator is
// trusted to enforce the list itself; this is an after-the-fact audit of its
// action log.
func (c *DevelopClient) auditActions(taskID string, resp *Response) {
	for _, action := range c.allowed.Violations(resp.Actions) {
		c.logger.Warn("Collaborator action outside allow-list",
			"task_id", taskID,
			"action", action)
	}
}

// ReviewClient adapts a Backend to the orchestrator's Reviewer interface.
// Review calls run under the retry policy: they are cheap relative to
// development and transient failures are common.
type ReviewClient struct {
	backend Backend
	retry   RetryConfig
	logger  *slog.Logger
}

// NewReviewClient wires a review collaborator.
func NewReviewClient(backend Backend, retry RetryConfig, logger *slog.Logger) *ReviewClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewClient{backend: backend, retry: retry, logger: logger}
}

// Review runs the review stage and returns the collaborator's raw output.
// A terminal error response surfaces as an error so the orchestrator records
// the rejection with the failure reason.
func (c *ReviewClient) Review(ctx context.Context, req workflow.ReviewRequest) (string, error) {
	resp, err := ExecuteWithRetry(ctx, c.backend, Request{
		TaskID: req.TaskID,
		Goal:   reviewGoal(req),
		Inputs: map[string]any{
			"report": req.Report,
		},
		OutputHints: []string{"review"},
		Deadline:    req.Deadline,
		Profile:     ProfileReview,
	}, c.retry, c.logger)
	if err != nil {
		return "", err
	}
	if resp.Status == StatusError {
		return "", fmt.Errorf("review failed: %s", resp.Summary)
	}
	if out := resp.Output("review"); out != nil {
		return rawString(out.Value), nil
	}
	return resp.Summary, nil
}

func reviewGoal(req workflow.ReviewRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Review the implementation of task: %s\n", req.Title)
	if len(req.AcceptanceCriteria) > 0 {
		sb.WriteString("\nAcceptance criteria:\n")
		for _, ac := range req.AcceptanceCriteria {
			fmt.Fprintf(&sb, "- %s\n", ac)
		}
	}
	if req.Goal != "" {
		fmt.Fprintf(&sb, "\nOverall goal: %s\n", req.Goal)
	}
	sb.WriteString("\nReply with a JSON object: {\"approved\": bool, \"summary\": string, \"comments\": [string], \"tests_passed\": bool}\n")
	return sb.String()
}

// reportText extracts the report output, falling back to the summary.
func reportText(resp *Response) string {
	if out := resp.Output("report"); out != nil {
		if s := rawString(out.Value); s != "" {
			return s
		}
	}
	return resp.Summary
}

// rawString renders an output value: JSON strings are unquoted, anything else
// is passed through as its JSON text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
