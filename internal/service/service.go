package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vadimbarashkov/tinylink/internal/database"
	"github.com/vadimbarashkov/tinylink/internal/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrMaxRetriesExceeded is returned when the maximum number of retries for generating a short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
	// ErrValidationCooldown is returned when a link was validated less than the cooldown ago.
	ErrValidationCooldown = errors.New("validation cooldown has not expired")
)

// LinkRepository defines the interface for working with links at the business logic layer.
type LinkRepository interface {
	// Create inserts a new shortened link into the repository.
	Create(ctx context.Context, shortCode, longURL string) (*models.Link, error)

	// GetByShortCode retrieves a link by its short code without touching its stats.
	GetByShortCode(ctx context.Context, shortCode string) (*models.Link, error)

	// Resolve retrieves a link by its short code and counts the view.
	Resolve(ctx context.Context, shortCode string) (*models.Link, error)

	// Update modifies the long URL for a given short code.
	Update(ctx context.Context, shortCode, longURL string) (*models.Link, error)

	// Delete removes a link by its short code.
	Delete(ctx context.Context, shortCode string) error

	// GetStats retrieves a link by its short code without changing.
	GetStats(ctx context.Context, shortCode string) (*models.Link, error)

	// CreateLog records a served redirect.
	CreateLog(ctx context.Context, log *models.LinkLog) error
}

// LinkValidator checks the reachability of a link's long URL and
// persists the verdict on the link.
type LinkValidator interface {
	Validate(ctx context.Context, link *models.Link, force bool) *models.Link
}

// LinkService provides methods to manage link shortening and validation.
type LinkService struct {
	repo            LinkRepository
	validator       LinkValidator
	shortCodeLength int
	now             func() time.Time
}

// NewLinkService creates a new instance of LinkService with the provided repository, validator and short code length.
func NewLinkService(repo LinkRepository, validator LinkValidator, shortCodeLength int) *LinkService {
	return &LinkService{
		repo:            repo,
		validator:       validator,
		shortCodeLength: shortCodeLength,
		now:             time.Now,
	}
}

// ShortenURL generates a short code for the provided long URL and stores it in the repository.
// It attempts to generate a unique short code up to a maximum number of retries.
func (s *LinkService) ShortenURL(ctx context.Context, longURL string) (*models.Link, error) {
	const op = "service.LinkService.ShortenURL"
	const maxRetries = 5

	for i := 0; i < maxRetries; i++ {
		shortCode, err := gonanoid.New(s.shortCodeLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		link, err := s.repo.Create(ctx, shortCode, longURL)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				s.shortCodeLength++
				defer func() {
					s.shortCodeLength--
				}()

				continue
			}

			return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		return link, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// ResolveShortCode retrieves the link associated with the provided short code and counts the view.
func (s *LinkService) ResolveShortCode(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "service.LinkService.ResolveShortCode"

	link, err := s.repo.Resolve(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	return link, nil
}

// TrackVisit records a served redirect in the link log.
func (s *LinkService) TrackVisit(ctx context.Context, log *models.LinkLog) error {
	const op = "service.LinkService.TrackVisit"

	if err := s.repo.CreateLog(ctx, log); err != nil {
		return fmt.Errorf("%s: failed to track visit: %w", op, err)
	}

	return nil
}

// ModifyURL updates the long URL associated with a given short code.
func (s *LinkService) ModifyURL(ctx context.Context, shortCode, longURL string) (*models.Link, error) {
	const op = "service.LinkService.ModifyURL"

	link, err := s.repo.Update(ctx, shortCode, longURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to modify url: %w", op, err)
	}

	return link, nil
}

// DeactivateURL deletes the link associated with the provided short code.
func (s *LinkService) DeactivateURL(ctx context.Context, shortCode string) error {
	const op = "service.LinkService.DeactivateURL"

	err := s.repo.Delete(ctx, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to deactivate url: %w", op, err)
	}

	return nil
}

// GetLinkStats retrieves the statistics for the link associated with the provided short code.
func (s *LinkService) GetLinkStats(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "service.LinkService.GetLinkStats"

	link, err := s.repo.GetStats(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get link stats: %w", op, err)
	}

	return link, nil
}

// ValidateLink validates the long URL of the link associated with the
// provided short code. Unless forced, a link is re-validated only after
// the cooldown since its last check has expired. The cooldown check is
// advisory: concurrent validations of the same link are deduplicated by
// the validator itself.
func (s *LinkService) ValidateLink(ctx context.Context, shortCode string, force bool) (*models.Link, error) {
	const op = "service.LinkService.ValidateLink"

	link, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get link: %w", op, err)
	}

	if !force && !link.CanBeValidated(s.now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrValidationCooldown)
	}

	return s.validator.Validate(ctx, link, force), nil
}
