package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/tinylink/internal/database"
	"github.com/vadimbarashkov/tinylink/internal/metrics"
	"github.com/vadimbarashkov/tinylink/internal/models"
	"github.com/vadimbarashkov/tinylink/internal/service"
	"github.com/vadimbarashkov/tinylink/pkg/response"
)

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

type linkRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type linkResponse struct {
	ID               int64     `json:"id"`
	ShortCode        string    `json:"short_code"`
	URL              string    `json:"url"`
	IsBroken         bool      `json:"is_broken"`
	ValidationError  string    `json:"validation_error,omitempty"`
	RedirectLocation string    `json:"redirect_location,omitempty"`
	LastChecked      time.Time `json:"last_checked"`
	AmountOfViews    int64     `json:"amount_of_views,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toLinkResponse(link *models.Link) linkResponse {
	return linkResponse{
		ID:               link.ID,
		ShortCode:        link.ShortCode,
		URL:              link.LongURL,
		IsBroken:         link.IsBroken,
		ValidationError:  link.ValidationError,
		RedirectLocation: link.RedirectLocation,
		LastChecked:      link.LastChecked,
		CreatedAt:        link.CreatedAt,
		UpdatedAt:        link.UpdatedAt,
	}
}

func handleShortenURL(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleShortenURL"
	const successMsg = "The URL has been shortened successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req linkRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		link, err := svc.ShortenURL(r.Context(), req.URL)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

func handleResolveShortCode(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleResolveShortCode"
	const successMsg = "The short code was successfully resolved."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		link, err := svc.ResolveShortCode(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleRedirect serves the short link itself: it resolves the short
// code, records the visit and redirects the client to the long URL.
func handleRedirect(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		link, err := svc.ResolveShortCode(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		visit := &models.LinkLog{
			LinkID:    link.ID,
			Referrer:  r.Referer(),
			UserAgent: r.UserAgent(),
			RemoteIP:  r.RemoteAddr,
		}

		// A lost log entry must not break the redirect.
		if err := svc.TrackVisit(r.Context(), visit); err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})
		}

		metrics.RedirectsTotal.Inc()

		http.Redirect(w, r, link.LongURL, http.StatusFound)
	}
}

func handleModifyURL(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleModifyURL"
	const successMsg = "The URL was successfully modified."

	return func(w http.ResponseWriter, r *http.Request) {
		var req linkRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		shortCode := chi.URLParam(r, "shortCode")

		link, err := svc.ModifyURL(r.Context(), shortCode, req.URL)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

func handleDeactivateURL(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleDeactivateURL"
	const successMsg = "The URL was successfully deactivated."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		err := svc.DeactivateURL(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

func handleGetLinkStats(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleGetLinkStats"
	const successMsg = "The link statistics retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		link, err := svc.GetLinkStats(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		data := toLinkResponse(link)
		data.AmountOfViews = link.AmountOfViews

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

func handleValidateLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleValidateLink"
	const successMsg = "The link was successfully validated."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")
		force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

		link, err := svc.ValidateLink(r.Context(), shortCode, force)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			if errors.Is(err, service.ErrValidationCooldown) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.ValidationCooldownResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}
