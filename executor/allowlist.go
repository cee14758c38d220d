package executor

import (
	"github.com/bmatcuk/doublestar/v4"
)

// AllowList is a set of doublestar patterns describing permitted actions,
// e.g. "fs/read/**" or "git/diff". An empty list permits everything.
type AllowList []string

// Permits reports whether the action matches any pattern.
func (a AllowList) Permits(action string) bool {
	if len(a) == 0 {
		return true
	}
	for _, pattern := range a {
		if ok, err := doublestar.Match(pattern, action); err == nil && ok {
			return true
		}
	}
	return false
}

// Violations returns the actions from a response log that fall outside the
// allow-list. Used for auditing what the collaborator actually did.
func (a AllowList) Violations(actions []ActionRecord) []string {
	if len(a) == 0 {
		return nil
	}
	var out []string
	for _, rec := range actions {
		if !a.Permits(rec.Action) {
			out = append(out, rec.Action)
		}
	}
	return out
}
