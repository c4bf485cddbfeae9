// Package validator implements the link validation engine. It fetches a
// link's long URL, interprets the HTTP outcome (including one explicit
// redirect hop, cookie-dependent redirect loops and transient gateway
// errors) and resolves every branch into a verdict on the link itself.
package validator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/vadimbarashkov/tinylink/internal/metrics"
	"github.com/vadimbarashkov/tinylink/internal/models"
)

const (
	defaultTimeout = 8 * time.Second
	defaultRetries = 2
)

// Validation error messages. They surface wherever links are displayed
// and are part of the observable contract; they mirror the default
// timeout and retry budget.
const (
	msgUnicodeError     = "Unicode error. Check URL characters."
	msgTimeout          = "Timeout after 8 seconds."
	msgRetriesExhausted = "Failed after retrying twice."
	msgNotFound         = "Not found."
	msgNotAccessible    = "URL not accessible."
)

// LinkStorage persists validation verdicts.
type LinkStorage interface {
	SaveValidation(ctx context.Context, link *models.Link) error
}

type Config struct {
	// Enabled gates automatic validation. Forced calls bypass it.
	Enabled bool
	// Timeout bounds each network attempt.
	Timeout time.Duration
	// Retries is the retry budget per fetch.
	Retries int
}

// Validator checks the reachability of long URLs. The pooled client is
// shared across calls and safe for concurrent use; a cookie-jar client
// is built per call.
type Validator struct {
	storage LinkStorage
	logger  *slog.Logger
	cfg     Config
	pooled  *http.Client
	plain   *http.Client
	group   singleflight.Group
	now     func() time.Time
}

func New(storage LinkStorage, logger *slog.Logger, cfg Config) *Validator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}

	return &Validator{
		storage: storage,
		logger:  logger,
		cfg:     cfg,
		pooled: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
			// Redirect statuses are interpreted by the decision tree,
			// not by the client.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		plain: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		now: time.Now,
	}
}

// Validate checks that the link's long URL is still reachable, persists
// the verdict and returns the same entity, mutated in place. Every
// failure resolves into IsBroken plus a ValidationError message;
// nothing propagates to the caller.
//
// Concurrent calls for the same short code collapse into one network
// sequence; late callers receive the shared verdict.
func (v *Validator) Validate(ctx context.Context, link *models.Link, force bool) *models.Link {
	if !v.cfg.Enabled && !force {
		return link
	}

	res, _, _ := v.group.Do(link.ShortCode, func() (any, error) {
		return v.validate(ctx, link), nil
	})

	if done, ok := res.(*models.Link); ok && done != link {
		link.IsBroken = done.IsBroken
		link.ValidationError = done.ValidationError
		link.RedirectLocation = done.RedirectLocation
		link.LastChecked = done.LastChecked
	}

	return link
}

func (v *Validator) validate(ctx context.Context, link *models.Link) *models.Link {
	const op = "validator.Validator.validate"

	link.IsBroken = true
	link.ValidationError = ""
	link.RedirectLocation = ""

	if !utf8.ValidString(link.LongURL) {
		link.ValidationError = msgUnicodeError
	} else {
		v.check(ctx, link)
	}

	if link.IsBroken && link.ValidationError == "" {
		// The redirect chain failed without a specific reason; surface
		// a generic one instead of an empty message.
		link.ValidationError = msgNotAccessible
	}

	link.LastChecked = v.now()

	verdict := "ok"
	if link.IsBroken {
		verdict = "broken"
	}
	metrics.ValidationsTotal.WithLabelValues(verdict).Inc()

	if err := v.storage.SaveValidation(ctx, link); err != nil {
		v.logger.Error(
			"failed to persist validation verdict",
			slog.Group(op, slog.String("short_code", link.ShortCode), slog.Any("err", err)),
		)
	}

	return link
}

func (v *Validator) check(ctx context.Context, link *models.Link) {
	status, location, errMsg := v.fetch(ctx, v.pooled, link.LongURL, v.cfg.Retries)
	if errMsg != "" {
		link.ValidationError = errMsg
		return
	}

	switch status {
	case http.StatusOK:
		link.IsBroken = false
	case http.StatusFound:
		if strings.HasSuffix(link.LongURL, ".pdf") {
			// PDF hosts tend to answer with relative-path redirects;
			// don't chase them.
			link.IsBroken = false
			return
		}
		v.followRedirect(ctx, link, location)
	case http.StatusBadGateway:
		// The pooled transport occasionally reports a live page as a
		// gateway error. Re-check once with a plain one-shot client.
		status, _, _ = v.fetch(ctx, v.plain, link.LongURL, 0)
		if status == http.StatusOK {
			link.IsBroken = false
		} else {
			link.ValidationError = msgNotAccessible
		}
	default:
		link.ValidationError = msgNotAccessible
	}
}

func (v *Validator) followRedirect(ctx context.Context, link *models.Link, location string) {
	link.RedirectLocation = location

	status, _, errMsg := v.fetch(ctx, v.pooled, location, v.cfg.Retries)
	if errMsg != "" {
		link.ValidationError = errMsg
		return
	}

	switch status {
	case http.StatusOK:
		link.IsBroken = false
	case http.StatusFound:
		// The target redirects again; the host may be waiting for a
		// session cookie. Retry once with a cookie jar.
		if v.fetchWithCookies(ctx, location) == http.StatusOK {
			link.IsBroken = false
		}
	}
}

// fetch issues a GET and reports the response status and Location
// header. Timeouts and DNS failures are terminal; other transport
// errors consume the retry budget.
func (v *Validator) fetch(ctx context.Context, client *http.Client, rawURL string, retries int) (status int, location string, errMsg string) {
	for attempt := 0; attempt <= retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, "", msgNotFound
		}

		resp, err := client.Do(req)
		if err != nil {
			var dnsErr *net.DNSError
			switch {
			case isTimeoutError(err):
				return 0, "", msgTimeout
			case errors.As(err, &dnsErr):
				return 0, "", msgNotFound
			}
			continue
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		return resp.StatusCode, resp.Header.Get("Location"), ""
	}

	return 0, "", msgRetriesExhausted
}

// fetchWithCookies follows the redirect chain with a cookie jar, so
// hosts that bounce until a session cookie is presented can settle.
// It reports the final status, or 0 when no response was obtained.
func (v *Validator) fetchWithCookies(ctx context.Context, rawURL string) int {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return 0
	}

	client := &http.Client{
		Timeout: v.cfg.Timeout,
		Jar:     jar,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode
}

func isTimeoutError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}
