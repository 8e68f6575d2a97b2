package domain

import "sort"

// Workflow-level fields tracked by the differ alongside payload fields.
const (
	diffFieldStatus   = "status"
	diffFieldMaker    = "maker_id"
	diffFieldChecker  = "checker_id"
	diffFieldComments = "review_comments"
)

// TrackedFields flattens an entity into the field set the differ compares:
// status, maker, checker and review comments plus every payload field. Nil
// pointers render as the empty string so a cleared field diffs cleanly.
func TrackedFields(e *WorkflowEntity) map[string]string {
	if e == nil {
		return map[string]string{}
	}
	fields := map[string]string{
		diffFieldStatus:   string(e.Status),
		diffFieldMaker:    e.MakerID,
		diffFieldChecker:  deref(e.CheckerID),
		diffFieldComments: deref(e.ReviewComments),
	}
	if e.Payload != nil {
		for name, value := range e.Payload.Fields() {
			fields[name] = value
		}
	}
	return fields
}

// Diff computes the ordered field-level changes between two entity states.
// before is nil for CREATE, in which case every non-empty field of after is
// reported as new. Unchanged fields are omitted; output is ordered by field
// name so identical transitions always audit identically.
func Diff(before, after *WorkflowEntity) []FieldChange {
	beforeFields := TrackedFields(before)
	afterFields := TrackedFields(after)

	names := make([]string, 0, len(afterFields))
	seen := make(map[string]bool, len(afterFields))
	for name := range afterFields {
		names = append(names, name)
		seen[name] = true
	}
	for name := range beforeFields {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	changes := make([]FieldChange, 0, len(names))
	for _, name := range names {
		oldValue := beforeFields[name]
		newValue := afterFields[name]
		if before == nil && newValue == "" {
			continue
		}
		if oldValue == newValue {
			continue
		}
		changes = append(changes, FieldChange{Field: name, Old: oldValue, New: newValue})
	}
	return changes
}

// ApplyChanges replays a change set onto a flattened field map. Used to verify
// that a diff is lossless over the tracked field set.
func ApplyChanges(fields map[string]string, changes []FieldChange) map[string]string {
	out := make(map[string]string, len(fields))
	for name, value := range fields {
		out[name] = value
	}
	for _, change := range changes {
		out[change.Field] = change.New
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
