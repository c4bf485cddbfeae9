package models

import "time"

// ValidationCooldown is the minimum time that must pass between two
// validation attempts on the same link.
const ValidationCooldown = 60 * time.Minute

// Link represents a shortened URL together with its validation state.
type Link struct {
	// ID is the unique identifier for the link record.
	ID int64
	// ShortCode is the short code or key associated with the long URL.
	ShortCode string
	// LongURL is the original, full-length URL that the short code points to.
	LongURL string
	// IsBroken is set when the long URL couldn't be validated.
	IsBroken bool
	// ValidationError describes why the last validation failed. Empty when the link is not broken.
	ValidationError string
	// RedirectLocation is the redirect target observed during validation, if any.
	RedirectLocation string
	// LastChecked is the timestamp of the last validation attempt.
	LastChecked time.Time
	// AmountOfViews tracks the number of times the redirect has been served.
	AmountOfViews int64
	// CreatedAt is the timestamp indicating when the link was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp indicating when the link was last updated.
	UpdatedAt time.Time
}

// CanBeValidated reports whether the cooldown since the last validation
// attempt has expired. The check is advisory: callers enforce it, the
// validator itself does not.
func (l *Link) CanBeValidated(now time.Time) bool {
	return now.Sub(l.LastChecked) >= ValidationCooldown
}

// LinkLog records a single served redirect.
type LinkLog struct {
	ID        int64
	LinkID    int64
	Referrer  string
	UserAgent string
	RemoteIP  string
	CreatedAt time.Time
}
