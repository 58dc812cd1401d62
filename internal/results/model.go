package results

import (
	"encoding/json"
	"strings"
	"time"
)

// Format tags how an incoming payload was parsed.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// DetectionResult is one inference output received from the vision service.
// Structured is nil for opaque text payloads. OccurredAt is the detection
// timestamp reported by the sender; it falls back to ReceivedAt when the
// sender omits or mangles it.
type DetectionResult struct {
	ReceivedAt time.Time      `json:"receivedAt"`
	OccurredAt time.Time      `json:"occurredAt"`
	Format     Format         `json:"format"`
	Raw        string         `json:"raw"`
	Prompt     string         `json:"prompt,omitempty"`
	NodeID     string         `json:"nodeId,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
	ProjectID  string         `json:"projectId,omitempty"`
	VideoID    string         `json:"videoId,omitempty"`
}

// envelope is the request shape the vision service posts: the model payload
// rides inside the result field, everything else is routing metadata.
type envelope struct {
	Result    *string `json:"result"`
	Timestamp string  `json:"timestamp"`
	Prompt    string  `json:"prompt"`
	NodeID    string  `json:"node_id"`
	ProjectID string  `json:"project_id"`
	VideoID   string  `json:"video_id"`
}

// ParseRequest decodes an ingress body. A JSON object carrying a result
// field is the vision-service envelope: the result string is the payload to
// normalize and the remaining fields are metadata. Anything else is treated
// as a bare payload. ParseRequest never fails.
func ParseRequest(body string, receivedAt time.Time) DetectionResult {
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil || env.Result == nil {
		return Normalize(body, receivedAt)
	}

	res := Normalize(*env.Result, receivedAt)
	res.Prompt = env.Prompt
	res.NodeID = env.NodeID
	if env.ProjectID != "" {
		res.ProjectID = env.ProjectID
	}
	if env.VideoID != "" {
		res.VideoID = env.VideoID
	}
	if ts, ok := parseEventTime(env.Timestamp); ok {
		res.OccurredAt = ts
	}
	return res
}

// eventTimeLayouts are the timestamp shapes the vision service has been seen
// to emit: RFC 3339 and a zone-less ISO-8601 variant, read as UTC.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseEventTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range eventTimeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Normalize parses a raw payload into a DetectionResult. JSON objects become
// structured results with project/video IDs lifted out of well-known keys;
// anything else is kept verbatim as text. Normalize never fails: ingress
// accepts whatever the model emits.
func Normalize(raw string, receivedAt time.Time) DetectionResult {
	res := DetectionResult{
		ReceivedAt: receivedAt,
		OccurredAt: receivedAt,
		Format:     FormatText,
		Raw:        raw,
	}

	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return res
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return res
	}

	res.Format = FormatJSON
	res.Structured = obj
	res.ProjectID = stringField(obj, "project_id", "projectId")
	res.VideoID = stringField(obj, "video_id", "videoId")
	return res
}

func stringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// metaKeys are result fields that are routing metadata, not listener output.
var metaKeys = map[string]bool{
	"project_id": true, "projectId": true,
	"video_id": true, "videoId": true,
	"timestamp": true, "frame": true,
}

// Fields returns the listener-facing fields of a structured result,
// with routing metadata stripped.
func (r DetectionResult) Fields() map[string]any {
	if r.Structured == nil {
		return nil
	}
	out := make(map[string]any, len(r.Structured))
	for k, v := range r.Structured {
		if metaKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}
