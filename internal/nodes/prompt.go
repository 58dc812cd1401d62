package nodes

import (
	"fmt"
	"strings"
)

// DefaultPrompt is sent to the vision service when no listeners are
// configured.
const DefaultPrompt = "Please add listener configuration in nodes.json"

// CompilePrompt renders one listener and its conditions into the
// "Goal: ..., Constraints: ..." prompt string the vision service consumes.
func CompilePrompt(l *ListenerConfig) string {
	goal := l.Name
	if goal == "" {
		goal = l.ID
	}
	if l.Type != "" {
		goal += fmt.Sprintf(" (%s)", l.Type)
	}

	var constraints []string
	for _, c := range l.Conditions {
		var parts []string
		if c.Name != "" {
			parts = append(parts, c.Name)
		}
		if c.Threshold != nil {
			parts = append(parts, fmt.Sprintf("threshold: %g", *c.Threshold))
		}
		if c.Type != "" {
			parts = append(parts, fmt.Sprintf("type: %s", c.Type))
		}
		if len(parts) > 0 {
			constraints = append(constraints, strings.Join(parts, ", "))
		}
	}

	if len(constraints) == 0 {
		return fmt.Sprintf("Goal: %s, Constraints: none", goal)
	}
	return fmt.Sprintf("Goal: %s, Constraints: %s", goal, strings.Join(constraints, "; "))
}

// CombinedPrompt numbers the per-listener prompts into a single string.
// A single listener keeps its prompt unnumbered.
func CombinedPrompt(listeners []*ListenerConfig) string {
	if len(listeners) == 0 {
		return DefaultPrompt
	}
	if len(listeners) == 1 {
		return CompilePrompt(listeners[0])
	}
	var parts []string
	for i, l := range listeners {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, CompilePrompt(l)))
	}
	return strings.Join(parts, " ")
}

// OutputSchema builds the structured-output JSON schema keyed by listener ID.
// Field names here become the candidate field names in detection results.
func OutputSchema(listeners []*ListenerConfig) map[string]any {
	if len(listeners) == 0 {
		return map[string]any{}
	}

	properties := map[string]any{}
	for i, l := range listeners {
		field := l.ID
		if field == "" {
			field = fmt.Sprintf("node_%d", i)
		}
		dt := l.Datatype
		switch dt {
		case TypeBoolean, TypeInteger, TypeNumber, TypeString:
		default:
			dt = TypeString
		}
		properties[field] = map[string]any{"type": string(dt)}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}
