// Package extraction turns free-text annotation responses into validated
// feature records and renders the prompts that request them.
package extraction

import "medthread/internal/models"

// Parse recovers, decodes, normalizes and validates one response. It fails only
// when no top-level JSON object can be recovered; field-level problems are
// returned as issues with the offending values nulled.
func Parse(raw string) (*models.Features, []FieldIssue, error) {
	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, nil, err
	}
	f, issues, err := DecodeFeatures(obj)
	if err != nil {
		return nil, nil, err
	}
	Normalize(f)
	issues = append(issues, Enforce(f)...)
	sortIssues(issues)
	return f, issues, nil
}

// IssueStrings flattens issues for storage.
func IssueStrings(issues []FieldIssue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.String())
	}
	return out
}
