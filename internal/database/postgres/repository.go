package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/tinylink/internal/database"
	"github.com/vadimbarashkov/tinylink/internal/models"
)

type linkRecord struct {
	ID               int64     `db:"id"`
	ShortCode        string    `db:"short_code"`
	LongURL          string    `db:"long_url"`
	IsBroken         bool      `db:"is_broken"`
	ValidationError  string    `db:"validation_error"`
	RedirectLocation string    `db:"redirect_location"`
	LastChecked      time.Time `db:"last_checked"`
	AmountOfViews    int64     `db:"amount_of_views"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r *linkRecord) ToLink() *models.Link {
	return &models.Link{
		ID:               r.ID,
		ShortCode:        r.ShortCode,
		LongURL:          r.LongURL,
		IsBroken:         r.IsBroken,
		ValidationError:  r.ValidationError,
		RedirectLocation: r.RedirectLocation,
		LastChecked:      r.LastChecked,
		AmountOfViews:    r.AmountOfViews,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{
		db: db,
	}
}

func (r *LinkRepository) Create(ctx context.Context, shortCode, longURL string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Create"

	rec := new(linkRecord)
	query := `INSERT INTO links(short_code, long_url)
		VALUES ($1, $2)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode, longURL)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

func (r *LinkRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.GetByShortCode"

	rec := new(linkRecord)
	query := `SELECT * FROM links WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

// Resolve returns the link for a short code and counts the view.
func (r *LinkRepository) Resolve(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Resolve"

	rec := new(linkRecord)
	query := `UPDATE links
		SET amount_of_views = amount_of_views + 1
		WHERE short_code = $1
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to resolve link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

func (r *LinkRepository) Update(ctx context.Context, shortCode, longURL string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Update"

	rec := new(linkRecord)
	query := `UPDATE links
		SET long_url = $1, updated_at = now()
		WHERE short_code = $2
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, longURL, shortCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to update link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

func (r *LinkRepository) Delete(ctx context.Context, shortCode string) error {
	const op = "database.postgres.LinkRepository.Delete"

	query := `DELETE FROM links WHERE short_code = $1`

	res, err := r.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to delete link record: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	return nil
}

func (r *LinkRepository) GetStats(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.GetStats"

	rec := new(linkRecord)
	query := `SELECT * FROM links WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

// SaveValidation persists the validation verdict of a link. The write is
// idempotent: only the verdict fields are touched.
func (r *LinkRepository) SaveValidation(ctx context.Context, link *models.Link) error {
	const op = "database.postgres.LinkRepository.SaveValidation"

	query := `UPDATE links
		SET is_broken = $1,
			validation_error = $2,
			redirect_location = $3,
			last_checked = $4,
			updated_at = now()
		WHERE id = $5`

	res, err := r.db.ExecContext(ctx, query,
		link.IsBroken, link.ValidationError, link.RedirectLocation, link.LastChecked, link.ID)
	if err != nil {
		return fmt.Errorf("%s: failed to save validation verdict: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	return nil
}

// ListValidatable returns links whose last validation attempt is older
// than the given cutoff, oldest first.
func (r *LinkRepository) ListValidatable(ctx context.Context, before time.Time, limit int) ([]*models.Link, error) {
	const op = "database.postgres.LinkRepository.ListValidatable"

	var recs []linkRecord
	query := `SELECT * FROM links
		WHERE last_checked <= $1
		ORDER BY last_checked ASC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &recs, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list link records: %w", op, err)
	}

	links := make([]*models.Link, 0, len(recs))
	for i := range recs {
		links = append(links, recs[i].ToLink())
	}

	return links, nil
}

func (r *LinkRepository) CreateLog(ctx context.Context, log *models.LinkLog) error {
	const op = "database.postgres.LinkRepository.CreateLog"

	query := `INSERT INTO link_logs(link_id, referrer, user_agent, remote_ip)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.ExecContext(ctx, query, log.LinkID, log.Referrer, log.UserAgent, log.RemoteIP); err != nil {
		return fmt.Errorf("%s: failed to create link log record: %w", op, err)
	}

	return nil
}
