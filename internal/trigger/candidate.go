package trigger

import (
	"strings"
	"time"

	"github.com/avesia/backend/internal/nodes"
)

// Candidate is one truthy result field matched to its listener.
type Candidate struct {
	ProjectID  string
	VideoID    string
	Field      string
	Value      any
	OccurredAt time.Time
	Listener   *nodes.ListenerConfig
}

// IsTruthy implements the trigger condition: a bool true, or the string
// "true" in any casing. Numbers and other values never fire, whatever a
// loose-typed reading might suggest.
func IsTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}
