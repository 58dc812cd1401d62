package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Event type tags on a saved clip. A clip is saved as event_trigger and
// upgraded to email_alert once an email for the same event succeeds.
const (
	ClipEventTrigger = "event_trigger"
	ClipEmailAlert   = "email_alert"
)

// VideoClip is the persisted record of an extracted segment. Immutable after
// save except for the event-type/recipient upgrade.
type VideoClip struct {
	ID              uuid.UUID  `json:"id"`
	ProjectID       uuid.UUID  `json:"projectId"`
	ListenerID      string     `json:"listenerId"`
	EventTimestamp  time.Time  `json:"timestamp"`
	VideoID         *uuid.UUID `json:"videoId,omitempty"`
	Filename        string     `json:"clipFilename"`
	DurationSeconds float64    `json:"durationSeconds"`
	EventType       string     `json:"type"`
	EmailSentTo     *string    `json:"emailSentTo,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type ClipModel struct {
	DB DBTX
}

// Save inserts the clip under the caller's ID, so the record shares its
// identifier with the {uuid}.mp4 file the extractor wrote. Callers keep the
// ID so the email path can upgrade the exact record it caused (not a
// timestamp match).
func (m ClipModel) Save(ctx context.Context, c *VideoClip) (uuid.UUID, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query := `
		INSERT INTO video_clips (
			id, project_id, listener_id, event_timestamp, video_id,
			filename, duration_seconds, event_type, email_sent_to
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := m.DB.QueryRowContext(ctx, query,
		c.ID, c.ProjectID, c.ListenerID, c.EventTimestamp, c.VideoID,
		c.Filename, c.DurationSeconds, c.EventType, c.EmailSentTo,
	).Scan(&c.CreatedAt)
	if err != nil {
		return uuid.Nil, err
	}
	return c.ID, nil
}

// UpdateEventTypeByID upgrades a clip's event type and recipient by primary
// key. Zero rows affected is a silent no-op: the clip may have been skipped
// by rate limiting.
func (m ClipModel) UpdateEventTypeByID(ctx context.Context, id uuid.UUID, newType string, recipient string) error {
	query := `
		UPDATE video_clips
		SET event_type = $1, email_sent_to = $2
		WHERE id = $3`

	_, err := m.DB.ExecContext(ctx, query, newType, recipient, id)
	return err
}

func (m ClipModel) GetByID(ctx context.Context, id uuid.UUID) (*VideoClip, error) {
	query := `
		SELECT id, project_id, listener_id, event_timestamp, video_id,
		       filename, duration_seconds, event_type, email_sent_to, created_at
		FROM video_clips
		WHERE id = $1`

	return m.scanOne(m.DB.QueryRowContext(ctx, query, id))
}

// ListByProject returns the analytics timeline, newest event first.
func (m ClipModel) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*VideoClip, error) {
	query := `
		SELECT id, project_id, listener_id, event_timestamp, video_id,
		       filename, duration_seconds, event_type, email_sent_to, created_at
		FROM video_clips
		WHERE project_id = $1
		ORDER BY event_timestamp DESC`

	rows, err := m.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*VideoClip
	for rows.Next() {
		var c VideoClip
		var videoID sql.Null[uuid.UUID]
		var sentTo sql.NullString
		if err := rows.Scan(
			&c.ID, &c.ProjectID, &c.ListenerID, &c.EventTimestamp, &videoID,
			&c.Filename, &c.DurationSeconds, &c.EventType, &sentTo, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		if videoID.Valid {
			v := videoID.V
			c.VideoID = &v
		}
		if sentTo.Valid {
			s := sentTo.String
			c.EmailSentTo = &s
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (m ClipModel) scanOne(row *sql.Row) (*VideoClip, error) {
	var c VideoClip
	var videoID sql.Null[uuid.UUID]
	var sentTo sql.NullString

	err := row.Scan(
		&c.ID, &c.ProjectID, &c.ListenerID, &c.EventTimestamp, &videoID,
		&c.Filename, &c.DurationSeconds, &c.EventType, &sentTo, &c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if videoID.Valid {
		v := videoID.V
		c.VideoID = &v
	}
	if sentTo.Valid {
		s := sentTo.String
		c.EmailSentTo = &s
	}
	return &c, nil
}
