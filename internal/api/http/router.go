package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vadimbarashkov/tinylink/internal/models"
)

type LinkService interface {
	ShortenURL(ctx context.Context, longURL string) (*models.Link, error)
	ResolveShortCode(ctx context.Context, shortCode string) (*models.Link, error)
	TrackVisit(ctx context.Context, log *models.LinkLog) error
	ModifyURL(ctx context.Context, shortCode, longURL string) (*models.Link, error)
	DeactivateURL(ctx context.Context, shortCode string) error
	GetLinkStats(ctx context.Context, shortCode string) (*models.Link, error)
	ValidateLink(ctx context.Context, shortCode string, force bool) (*models.Link, error)
}

func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

func NewRouter(logger *httplog.Logger, linkSvc LinkService) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())

		r.Route("/shorten", func(r chi.Router) {
			r.Post("/", handleShortenURL(linkSvc, validate))

			r.Route("/{shortCode}", func(r chi.Router) {
				r.Get("/", handleResolveShortCode(linkSvc))
				r.Put("/", handleModifyURL(linkSvc, validate))
				r.Delete("/", handleDeactivateURL(linkSvc))
				r.Get("/stats", handleGetLinkStats(linkSvc))
				r.Post("/validate", handleValidateLink(linkSvc))
			})
		})
	})

	// Short links live at the root so redirects stay short.
	r.Get("/{shortCode}", handleRedirect(linkSvc))

	return r
}
