package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Project is a user-owned container for videos and listener configuration.
type Project struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ProjectModel struct {
	DB DBTX
}

func (m ProjectModel) Create(ctx context.Context, p *Project) error {
	query := `
		INSERT INTO projects (user_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	return m.DB.QueryRowContext(ctx, query, p.UserID, p.Name).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetByID scopes to the owning user so one user cannot read another's project.
func (m ProjectModel) GetByID(ctx context.Context, id uuid.UUID, userID string) (*Project, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM projects
		WHERE id = $1 AND user_id = $2`

	var p Project
	err := m.DB.QueryRowContext(ctx, query, id, userID).Scan(
		&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Lookup fetches a project by ID alone. Used by the trigger pipeline, which
// has no user context (results arrive from the vision service).
func (m ProjectModel) Lookup(ctx context.Context, id uuid.UUID) (*Project, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM projects
		WHERE id = $1`

	var p Project
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (m ProjectModel) ListByUser(ctx context.Context, userID string) ([]*Project, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM projects
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := m.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (m ProjectModel) Update(ctx context.Context, p *Project) error {
	query := `
		UPDATE projects
		SET name = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING updated_at`

	err := m.DB.QueryRowContext(ctx, query, p.Name, p.ID, p.UserID).Scan(&p.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrRecordNotFound
	}
	return err
}

func (m ProjectModel) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM projects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
