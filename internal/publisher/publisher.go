package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is where trigger events land for downstream consumers
// (audit pipelines, external automations).
const DefaultSubject = "avesia.events.triggered"

// TriggerEvent is the broadcast form of a fired listener.
type TriggerEvent struct {
	ProjectID    string    `json:"projectId"`
	ListenerID   string    `json:"listenerId"`
	ListenerName string    `json:"listenerName"`
	VideoID      string    `json:"videoId,omitempty"`
	ClipID       string    `json:"clipId,omitempty"`
	EmailSentTo  string    `json:"emailSentTo,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NATSPublisher publishes trigger events with a small bounded retry.
type NATSPublisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func NewNATSPublisher(conn *nats.Conn, subject string, maxRetries int) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject, maxRetries: maxRetries}
}

func (p *NATSPublisher) Publish(event *TriggerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, data)
		if err == nil {
			return nil
		}
		// Backoff
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}
