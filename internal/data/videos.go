package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Video is an uploaded source file clips are extracted from. Upload and
// thumbnail handling live outside this service; the trigger pipeline only
// ever reads these records.
type Video struct {
	ID              uuid.UUID `json:"id"`
	ProjectID       uuid.UUID `json:"projectId"`
	Filename        string    `json:"filename"`
	Path            string    `json:"path"`
	DurationSeconds float64   `json:"durationSeconds"`
	UploadedAt      time.Time `json:"uploadedAt"`
}

type VideoModel struct {
	DB DBTX
}

func (m VideoModel) GetByID(ctx context.Context, id uuid.UUID) (*Video, error) {
	query := `
		SELECT id, project_id, filename, path, duration_seconds, uploaded_at
		FROM videos
		WHERE id = $1`

	var v Video
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.ProjectID, &v.Filename, &v.Path, &v.DurationSeconds, &v.UploadedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (m VideoModel) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Video, error) {
	query := `
		SELECT id, project_id, filename, path, duration_seconds, uploaded_at
		FROM videos
		WHERE project_id = $1
		ORDER BY uploaded_at DESC`

	rows, err := m.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Video
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.ID, &v.ProjectID, &v.Filename, &v.Path, &v.DurationSeconds, &v.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
