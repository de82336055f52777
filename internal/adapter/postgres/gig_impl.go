package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
)

// FindGig returns the id of a gig with the same title (any case) dated in [from, to).
func (r *GigRepoImpl) FindGig(ctx context.Context, title string, from, to time.Time) (int64, error) {
	query, args, err := psql.
		Select("id").
		From("gigs").
		Where(sq.Expr("LOWER(title) = LOWER(?)", title)).
		Where(sq.GtOrEq{"date": from}).
		Where(sq.Lt{"date": to}).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build gig query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, mapError(err)
	}
	return id, nil
}

// CreateGig inserts a gig under venueID.
func (r *GigRepoImpl) CreateGig(ctx context.Context, gig entity.Gig, venueID int64) (int64, error) {
	query, args, err := psql.
		Insert("gigs").
		Columns("title", "date", "venue_id", "description", "price", "source_url", "image_url").
		Values(gig.Title, gig.Date, venueID, gig.Description, gig.Price, gig.SourceURL, gig.ImageURL).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build gig insert: %w", err)
	}

	var id int64
	err = r.db.QueryRow(ctx, query, args...).Scan(&id)
	return id, err
}

// DeleteAllGigs truncates the gig table. Roles without TRUNCATE get
// ErrBulkDeleteUnavailable and must delete row by row.
func (r *GigRepoImpl) DeleteAllGigs(ctx context.Context) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM gigs`).Scan(&count); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `TRUNCATE gigs`); err != nil {
		if isInsufficientPrivilege(err) {
			return 0, fmt.Errorf("%w: %v", repository.ErrBulkDeleteUnavailable, err)
		}
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

// ListGigs returns the oldest pageSize gigs and the total count.
func (r *GigRepoImpl) ListGigs(ctx context.Context, pageSize int) (*entity.GigPage, error) {
	query, args, err := psql.
		Select("id", "COUNT(*) OVER ()").
		From("gigs").
		OrderBy("id").
		Limit(uint64(pageSize)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build gig list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &entity.GigPage{}
	for rows.Next() {
		var ref entity.GigRef
		if err := rows.Scan(&ref.ID, &page.Total); err != nil {
			return nil, err
		}
		page.Items = append(page.Items, ref)
	}
	return page, rows.Err()
}

// DeleteGig removes one gig by id.
func (r *GigRepoImpl) DeleteGig(ctx context.Context, ref entity.GigRef) error {
	query, args, err := psql.Delete("gigs").Where(sq.Eq{"id": ref.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build gig delete: %w", err)
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}
