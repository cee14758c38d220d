package workflow

import (
	"encoding/json"
	"strings"

	"github.com/c360studio/foreman/llm"
)

// Verdict values recognized from the external override.
const (
	VerdictApproved = "approved"
	VerdictRejected = "rejected"
)

// Verdict is an optional external override of a review outcome, produced by
// normalizing free-text reviewer output through the LLM collaborator.
type Verdict struct {
	Verdict string   `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`
}

// Decision is the final accept/reject outcome for a task attempt.
type Decision struct {
	Approved bool
	// Reasons are advisory text shown to the user, never required for
	// correctness.
	Reasons []string
}

// Decide merges a structured review result with an optional override verdict.
// The default mirrors review.Approved; an override is applied only when its
// verdict is exactly "approved" or "rejected".
func Decide(review ReviewResult, override *Verdict) Decision {
	approved := review.Approved
	var reasons []string

	if override != nil {
		switch strings.ToLower(strings.TrimSpace(override.Verdict)) {
		case VerdictApproved:
			approved = true
		case VerdictRejected:
			approved = false
		}
		reasons = override.Reasons
	}

	if len(reasons) == 0 {
		reasons = review.Comments
	}

	return Decision{Approved: approved, Reasons: reasons}
}

// ParseReviewResult normalizes free-text or structured reviewer output into a
// ReviewResult. A parse failure yields approved=false with a synthetic
// comment, never an error: the payload's shape is never trusted directly, and
// every missing or invalid field gets a default.
func ParseReviewResult(text string) ReviewResult {
	raw, err := llm.ExtractObject(text)
	if err != nil {
		return ReviewResult{
			Approved: false,
			Summary:  TruncateTail(strings.TrimSpace(text), 500),
			Comments: []string{"review response contained no parseable verdict"},
		}
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return ReviewResult{
			Approved: false,
			Summary:  TruncateTail(strings.TrimSpace(text), 500),
			Comments: []string{"review response contained malformed JSON"},
		}
	}

	return reviewFromPayload(payload)
}

// reviewFromPayload is a total conversion from an untyped payload to a
// ReviewResult. Every field defaults when missing or of the wrong shape.
func reviewFromPayload(payload map[string]any) ReviewResult {
	result := ReviewResult{
		Approved:      asBool(payload["approved"]),
		Summary:       asString(payload["summary"]),
		Comments:      asStringList(payload["comments"]),
		FilesReviewed: asStringList(payload["files_reviewed"]),
	}

	if v, ok := payload["tests_passed"]; ok {
		if b, ok := v.(bool); ok {
			result.TestsPassed = &b
		}
	}

	return result
}

// asBool accepts JSON booleans plus the string spellings models produce.
func asBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "approved":
			return true
		}
	}
	return false
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// asStringList accepts a list of strings, a single string, or anything else
// (treated as empty).
func asStringList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return []string{strings.TrimSpace(val)}
	default:
		return nil
	}
}

// ParseVerdict normalizes free-text override output into a Verdict. Returns
// nil when no verdict can be extracted; the caller falls back to the review's
// own approved flag.
func ParseVerdict(text string) *Verdict {
	raw, err := llm.ExtractObject(text)
	if err != nil {
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}

	verdict := strings.ToLower(asString(payload["verdict"]))
	if verdict == "" {
		return nil
	}

	return &Verdict{
		Verdict: verdict,
		Reasons: asStringList(payload["reasons"]),
	}
}
