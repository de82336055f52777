package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/gig-sync-service/internal/entity"
)

// GigRepoImpl stores venues and gigs in PostgreSQL.
type GigRepoImpl struct {
	db *pgxpool.Pool
}

// NewGigRepo creates a new instance of GigRepoImpl.
func NewGigRepo(db *pgxpool.Pool) *GigRepoImpl {
	return &GigRepoImpl{db: db}
}

// FindVenueByName matches the name case-insensitively.
func (r *GigRepoImpl) FindVenueByName(ctx context.Context, name string) (*entity.Venue, error) {
	query, args, err := psql.
		Select("id", "name", "address", "website", "neighborhood").
		From("venues").
		Where(sq.Expr("LOWER(name) = LOWER(?)", name)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build venue query: %w", err)
	}

	var v entity.Venue
	err = r.db.QueryRow(ctx, query, args...).Scan(&v.ID, &v.Name, &v.Address, &v.Website, &v.Neighborhood)
	if err != nil {
		return nil, mapError(err)
	}
	return &v, nil
}

// CreateVenue inserts a venue. A concurrent insert of the same name returns the existing row.
func (r *GigRepoImpl) CreateVenue(ctx context.Context, venue entity.Venue) (int64, error) {
	query := `
		INSERT INTO venues (name, address, website, neighborhood)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ((LOWER(name))) DO UPDATE SET name = venues.name
		RETURNING id;
	`
	var id int64
	err := r.db.QueryRow(ctx, query, venue.Name, venue.Address, venue.Website, venue.Neighborhood).Scan(&id)
	return id, err
}
