package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/verbalink/verbalink-api/internal/models"
)

// GigRepository handles persistence of gigs.
type GigRepository struct {
	db *sqlx.DB
}

// NewGigRepository constructs the repository.
func NewGigRepository(db *sqlx.DB) *GigRepository {
	return &GigRepository{db: db}
}

// FindByID returns a gig by its ID.
func (r *GigRepository) FindByID(ctx context.Context, id string) (*models.Gig, error) {
	const query = `SELECT id, teacher_id, title, category, price_per_session_cents,
        session_duration_minutes, currency, active, created_at, updated_at
        FROM gigs WHERE id = $1`
	var gig models.Gig
	if err := r.db.GetContext(ctx, &gig, query, id); err != nil {
		return nil, err
	}
	return &gig, nil
}
