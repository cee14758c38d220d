package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		review   ReviewResult
		override *Verdict
		want     bool
	}{
		{
			name:   "review approval stands without override",
			review: ReviewResult{Approved: true},
			want:   true,
		},
		{
			name:     "override rejects an approved review",
			review:   ReviewResult{Approved: true},
			override: &Verdict{Verdict: "rejected", Reasons: []string{"tests missing"}},
			want:     false,
		},
		{
			name:     "override approves a rejected review",
			review:   ReviewResult{Approved: false},
			override: &Verdict{Verdict: "approved"},
			want:     true,
		},
		{
			name:     "unrecognized override verdict falls back to the review",
			review:   ReviewResult{Approved: true},
			override: &Verdict{Verdict: "maybe"},
			want:     true,
		},
		{
			name:     "override verdict is case and space tolerant",
			review:   ReviewResult{Approved: false},
			override: &Verdict{Verdict: "  Approved "},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.review, tt.override)
			assert.Equal(t, tt.want, got.Approved)
		})
	}
}

func TestDecideReasonFallback(t *testing.T) {
	review := ReviewResult{Approved: false, Comments: []string{"missing error handling"}}

	got := Decide(review, &Verdict{Verdict: "rejected"})
	assert.Equal(t, []string{"missing error handling"}, got.Reasons,
		"an override without reasons keeps the review comments")

	got = Decide(review, &Verdict{Verdict: "rejected", Reasons: []string{"override reason"}})
	assert.Equal(t, []string{"override reason"}, got.Reasons)
}

func TestParseReviewResult(t *testing.T) {
	t.Run("structured approval", func(t *testing.T) {
		got := ParseReviewResult(`{"approved": true, "summary": "all good", "comments": ["nice tests"], "tests_passed": true}`)
		assert.True(t, got.Approved)
		assert.Equal(t, "all good", got.Summary)
		assert.Equal(t, []string{"nice tests"}, got.Comments)
		require.NotNil(t, got.TestsPassed)
		assert.True(t, *got.TestsPassed)
	})

	t.Run("verdict embedded in prose", func(t *testing.T) {
		text := "The implementation looks complete.\n\n" +
			"```json\n{\"approved\": false, \"comments\": [\"no coverage for the error path\"]}\n```\n" +
			"Please address the comment."
		got := ParseReviewResult(text)
		assert.False(t, got.Approved)
		assert.Equal(t, []string{"no coverage for the error path"}, got.Comments)
	})

	t.Run("string spellings of approved", func(t *testing.T) {
		got := ParseReviewResult(`{"approved": "yes"}`)
		assert.True(t, got.Approved)
	})

	t.Run("no JSON means not approved", func(t *testing.T) {
		got := ParseReviewResult("looks great, ship it!")
		assert.False(t, got.Approved, "free text never counts as approval")
		require.Len(t, got.Comments, 1)
		assert.Contains(t, got.Comments[0], "no parseable verdict")
	})

	t.Run("missing fields default", func(t *testing.T) {
		got := ParseReviewResult(`{}`)
		assert.False(t, got.Approved)
		assert.Empty(t, got.Comments)
		assert.Nil(t, got.TestsPassed)
	})

	t.Run("wrong field shapes default", func(t *testing.T) {
		got := ParseReviewResult(`{"approved": 1, "comments": "single comment", "tests_passed": "yes"}`)
		assert.False(t, got.Approved)
		assert.Equal(t, []string{"single comment"}, got.Comments)
		assert.Nil(t, got.TestsPassed, "non-boolean tests_passed stays unset")
	})
}

func TestParseVerdict(t *testing.T) {
	t.Run("valid verdict", func(t *testing.T) {
		v := ParseVerdict(`{"verdict": "Approved", "reasons": ["meets criteria"]}`)
		require.NotNil(t, v)
		assert.Equal(t, VerdictApproved, v.Verdict)
		assert.Equal(t, []string{"meets criteria"}, v.Reasons)
	})

	t.Run("no JSON", func(t *testing.T) {
		assert.Nil(t, ParseVerdict("definitely approved, great work"))
	})

	t.Run("JSON without verdict field", func(t *testing.T) {
		assert.Nil(t, ParseVerdict(`{"approved": true}`))
	})
}
