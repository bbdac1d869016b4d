package contact

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/tasfrl/api/internal/database"
)

// Repository handles contact submission persistence
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new contact submission
func (r *Repository) Create(ctx context.Context, name, email, message string) (*Submission, error) {
	dbSubmission := &database.ContactSubmission{
		Name:    name,
		Email:   email,
		Message: message,
	}

	_, err := r.db.NewInsert().
		Model(dbSubmission).
		Returning("*").
		Exec(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to create contact submission: %w", err)
	}

	return mapDBSubmissionToModel(dbSubmission), nil
}

// ListRecent returns the newest submissions, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Submission, error) {
	var dbSubmissions []database.ContactSubmission

	err := r.db.NewSelect().
		Model(&dbSubmissions).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list contact submissions: %w", err)
	}

	submissions := make([]Submission, 0, len(dbSubmissions))
	for i := range dbSubmissions {
		submissions = append(submissions, *mapDBSubmissionToModel(&dbSubmissions[i]))
	}

	return submissions, nil
}

// mapDBSubmissionToModel converts database model to domain model
func mapDBSubmissionToModel(dbs *database.ContactSubmission) *Submission {
	return &Submission{
		ID:        dbs.ID,
		Name:      dbs.Name,
		Email:     dbs.Email,
		Message:   dbs.Message,
		CreatedAt: dbs.CreatedAt,
		UpdatedAt: dbs.UpdatedAt,
	}
}
