package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/foreman/llm"
	"github.com/c360studio/foreman/workflow"
)

// Oracle implements the orchestrator's verdict normalization and final
// report composition on top of the language model.
type Oracle struct {
	llm Completer
}

// NewOracle creates an oracle backed by the given completer.
func NewOracle(completer Completer) *Oracle {
	return &Oracle{llm: completer}
}

const normalizePrompt = `You are given the raw output of a code review. Decide whether it approves or rejects the work.

Respond with only a JSON object:
{"verdict": "approved" or "rejected", "reasons": ["short reasons"]}`

// NormalizeVerdict reduces free-text review output to a verdict. The review
// text itself is tried first: if it already carries a parseable verdict, no
// model call is made.
func (o *Oracle) NormalizeVerdict(ctx context.Context, reviewOutput string) (*workflow.Verdict, error) {
	if v := workflow.ParseVerdict(reviewOutput); v != nil {
		return v, nil
	}

	resp, err := o.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: normalizePrompt},
			{Role: "user", Content: reviewOutput},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("normalize verdict: %w", err)
	}

	if v := workflow.ParseVerdict(resp.Content); v != nil {
		return v, nil
	}
	return nil, errors.New("normalized output carried no verdict")
}

const reportPrompt = `Write a short completion report for this development plan. Summarize what was accomplished, what failed and why, and anything left unfinished. Plain prose, no JSON.`

// ComposeReport asks the model for a human-readable plan summary.
func (o *Oracle) ComposeReport(ctx context.Context, plan *workflow.Plan) (string, error) {
	resp, err := o.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: reportPrompt},
			{Role: "user", Content: planDigest(plan)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("compose report: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// planDigest renders the plan state compactly for the report prompt.
func planDigest(plan *workflow.Plan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\nStatus: %s\n\nTasks:\n", plan.Goal, plan.Status)
	for i := range plan.Tasks {
		t := &plan.Tasks[i]
		fmt.Fprintf(&sb, "- %s [%s, %d attempt(s)]\n", t.Title, t.Status, t.Attempt)
		for _, r := range t.Rejections {
			for _, c := range r.Comments {
				fmt.Fprintf(&sb, "  rejection (attempt %d): %s\n", r.Attempt, c)
			}
		}
		if t.Status == workflow.TaskApproved && t.Report != "" {
			fmt.Fprintf(&sb, "  report tail: %s\n", workflow.TruncateTail(t.Report, 512))
		}
	}
	return sb.String()
}
