// Package executor defines the delegated executor protocol: the typed
// request/response contract for development and review work performed by an
// external collaborator, plus the retry policy wrapped around those calls.
package executor

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status tags recognized in an executor response.
const (
	StatusOK         = "ok"
	StatusNeedsInput = "needs_input"
	StatusError      = "error"
)

// Profiles select the collaborator behavior for a request.
const (
	ProfileDevelop = "develop"
	ProfileReview  = "review"
)

// Request is one delegated unit of work.
type Request struct {
	TaskID string `json:"task_id"`

	// Goal is the instruction text for this request.
	Goal string `json:"goal"`

	// Context carries free-form background: prior reports, rejection
	// feedback, the plan goal.
	Context string `json:"context,omitempty"`

	// Inputs are structured inputs keyed by name.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Constraint optionally restricts how the work may be performed.
	Constraint string `json:"constraint,omitempty"`

	// AllowedActions optionally restricts which actions the collaborator may
	// take, as doublestar patterns. Empty means unrestricted.
	AllowedActions []string `json:"allowed_actions,omitempty"`

	// OutputHints optionally describe the expected response shape.
	OutputHints []string `json:"output_hints,omitempty"`

	// Deadline optionally bounds the work; zero means no explicit deadline.
	Deadline time.Time `json:"deadline,omitzero"`

	// Profile selects the collaborator behavior.
	Profile string `json:"profile,omitempty"`
}

// Validate fails fast on a malformed request, before any work starts.
// Validation errors are never retried.
func (r *Request) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("executor request: task_id is required")
	}
	if r.Goal == "" {
		return fmt.Errorf("executor request: goal is required")
	}
	return nil
}

// ParseRequest decodes and validates a wire-format request. Beyond the typed
// checks, it rejects a payload whose allowed_actions is present but not
// list-shaped, which a typed unmarshal would silently mangle.
func ParseRequest(data []byte) (*Request, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("executor request: malformed JSON: %w", err)
	}
	if raw, ok := shape["allowed_actions"]; ok && len(raw) > 0 && string(raw) != "null" {
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("executor request: allowed_actions must be a list")
		}
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("executor request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Output is one typed result produced by the collaborator.
type Output struct {
	Name  string          `json:"name"`
	Type  string          `json:"type,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// ActionRecord logs one action the collaborator took.
type ActionRecord struct {
	Action string    `json:"action"`
	Target string    `json:"target,omitempty"`
	At     time.Time `json:"at,omitzero"`
}

// Response is the collaborator's answer to a Request.
type Response struct {
	TaskID    string         `json:"task_id"`
	Status    string         `json:"status"`
	Summary   string         `json:"summary,omitempty"`
	Outputs   []Output       `json:"outputs,omitempty"`
	Actions   []ActionRecord `json:"actions,omitempty"`
	Questions []string       `json:"questions,omitempty"`
}

// Validate rejects a response with an empty task id or an unrecognized
// status tag.
func (r *Response) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("executor response: task_id is required")
	}
	switch r.Status {
	case StatusOK, StatusNeedsInput, StatusError:
		return nil
	default:
		return fmt.Errorf("executor response: unrecognized status %q", r.Status)
	}
}

// ParseResponse decodes and validates a wire-format response.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("executor response: malformed JSON: %w", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Output returns the named output, or nil.
func (r *Response) Output(name string) *Output {
	for i := range r.Outputs {
		if r.Outputs[i].Name == name {
			return &r.Outputs[i]
		}
	}
	return nil
}
