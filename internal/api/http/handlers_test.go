package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/tinylink/internal/database"
	"github.com/vadimbarashkov/tinylink/internal/models"
	"github.com/vadimbarashkov/tinylink/internal/service"
	"github.com/vadimbarashkov/tinylink/pkg/response"
)

type MockLinkService struct {
	mock.Mock
}

func (s *MockLinkService) ShortenURL(ctx context.Context, longURL string) (*models.Link, error) {
	args := s.Called(ctx, longURL)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (s *MockLinkService) ResolveShortCode(ctx context.Context, shortCode string) (*models.Link, error) {
	args := s.Called(ctx, shortCode)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (s *MockLinkService) TrackVisit(ctx context.Context, log *models.LinkLog) error {
	args := s.Called(ctx, log)
	return args.Error(0)
}

func (s *MockLinkService) ModifyURL(ctx context.Context, shortCode, longURL string) (*models.Link, error) {
	args := s.Called(ctx, shortCode, longURL)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (s *MockLinkService) DeactivateURL(ctx context.Context, shortCode string) error {
	args := s.Called(ctx, shortCode)
	return args.Error(0)
}

func (s *MockLinkService) GetLinkStats(ctx context.Context, shortCode string) (*models.Link, error) {
	args := s.Called(ctx, shortCode)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (s *MockLinkService) ValidateLink(ctx context.Context, shortCode string, force bool) (*models.Link, error) {
	args := s.Called(ctx, shortCode, force)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

type HandlersTestSuite struct {
	suite.Suite
	logger      *httplog.Logger
	linkSvcMock *MockLinkService
	server      *httptest.Server
	e           *httpexpect.Expect
}

func (suite *HandlersTestSuite) SetupSuite() {
	suite.logger = httplog.NewLogger("", httplog.Options{Writer: io.Discard})
}

func (suite *HandlersTestSuite) SetupSubTest() {
	suite.linkSvcMock = new(MockLinkService)
	router := NewRouter(suite.logger, suite.linkSvcMock)
	suite.server = httptest.NewServer(router)
	suite.e = httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  suite.server.URL,
		Reporter: httpexpect.NewAssertReporter(suite.T()),
		Client: &http.Client{
			// Redirect responses are asserted directly.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	})
}

func (suite *HandlersTestSuite) TearDownSubTest() {
	suite.linkSvcMock.AssertExpectations(suite.T())
	suite.server.Close()
}

func (suite *HandlersTestSuite) TestPing() {
	const path = "/api/v1/ping"

	suite.Run("success", func() {
		suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			Text().IsEqual("pong\n")
	})
}

func (suite *HandlersTestSuite) TestShortenURL() {
	const path = "/api/v1/shorten"

	suite.Run("empty request body", func() {
		suite.e.POST(path).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.EmptyRequestBodyResponse.Message)
	})

	suite.Run("invalid request body", func() {
		suite.e.POST(path).
			WithJSON("invalid body").
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.BadRequestResponse.Message)
	})

	suite.Run("validation error", func() {
		suite.e.POST(path).
			WithJSON(map[string]string{
				"url": "invalid url",
			}).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			ContainsKey("message").
			ContainsKey("details")
	})

	suite.Run("server error", func() {
		suite.linkSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com").
			Times(1).
			Return(nil, errors.New("unknown error"))

		suite.e.POST(path).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusInternalServerError).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ServerErrorResponse.Message)
	})

	suite.Run("success", func() {
		link := &models.Link{
			ID:        1,
			ShortCode: "code1",
			LongURL:   "https://example.com",
		}

		suite.linkSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com").
			Times(1).
			Return(link, nil)

		resp := suite.e.POST(path).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusCreated).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess)

		resp.Value("data").Object().
			HasValue("short_code", "code1").
			HasValue("url", "https://example.com").
			HasValue("is_broken", false)
	})
}

func (suite *HandlersTestSuite) TestResolveShortCode() {
	const path = "/api/v1/shorten/code1"

	suite.Run("link not found", func() {
		suite.linkSvcMock.
			On("ResolveShortCode", mock.Anything, "code1").
			Times(1).
			Return(nil, database.ErrLinkNotFound)

		suite.e.GET(path).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)
	})

	suite.Run("success", func() {
		link := &models.Link{
			ID:        1,
			ShortCode: "code1",
			LongURL:   "https://example.com",
		}

		suite.linkSvcMock.
			On("ResolveShortCode", mock.Anything, "code1").
			Times(1).
			Return(link, nil)

		resp := suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess)

		resp.Value("data").Object().
			HasValue("short_code", "code1").
			HasValue("url", "https://example.com")
	})
}

func (suite *HandlersTestSuite) TestRedirect() {
	const path = "/code1"

	suite.Run("link not found", func() {
		suite.linkSvcMock.
			On("ResolveShortCode", mock.Anything, "code1").
			Times(1).
			Return(nil, database.ErrLinkNotFound)

		suite.e.GET(path).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)
	})

	suite.Run("success", func() {
		link := &models.Link{
			ID:        1,
			ShortCode: "code1",
			LongURL:   "https://example.com",
		}

		suite.linkSvcMock.
			On("ResolveShortCode", mock.Anything, "code1").
			Times(1).
			Return(link, nil)
		suite.linkSvcMock.
			On("TrackVisit", mock.Anything, mock.Anything).
			Times(1).
			Return(nil)

		suite.e.GET(path).
			Expect().
			Status(http.StatusFound).
			Header("Location").IsEqual("https://example.com")
	})

	suite.Run("lost log entry doesn't break the redirect", func() {
		link := &models.Link{
			ID:        1,
			ShortCode: "code1",
			LongURL:   "https://example.com",
		}

		suite.linkSvcMock.
			On("ResolveShortCode", mock.Anything, "code1").
			Times(1).
			Return(link, nil)
		suite.linkSvcMock.
			On("TrackVisit", mock.Anything, mock.Anything).
			Times(1).
			Return(errors.New("unknown error"))

		suite.e.GET(path).
			Expect().
			Status(http.StatusFound).
			Header("Location").IsEqual("https://example.com")
	})
}

func (suite *HandlersTestSuite) TestModifyURL() {
	const path = "/api/v1/shorten/code1"

	suite.Run("link not found", func() {
		suite.linkSvcMock.
			On("ModifyURL", mock.Anything, "code1", "https://example.com").
			Times(1).
			Return(nil, database.ErrLinkNotFound)

		suite.e.PUT(path).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)
	})

	suite.Run("success", func() {
		link := &models.Link{
			ID:        1,
			ShortCode: "code1",
			LongURL:   "https://example.com",
		}

		suite.linkSvcMock.
			On("ModifyURL", mock.Anything, "code1", "https://example.com").
			Times(1).
			Return(link, nil)

		suite.e.PUT(path).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess)
	})
}

func (suite *HandlersTestSuite) TestDeactivateURL() {
	const path = "/api/v1/shorten/code1"

	suite.Run("link not found", func() {
		suite.linkSvcMock.
			On("DeactivateURL", mock.Anything, "code1").
			Times(1).
			Return(database.ErrLinkNotFound)

		suite.e.DELETE(path).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)
	})

	suite.Run("success", func() {
		suite.linkSvcMock.
			On("DeactivateURL", mock.Anything, "code1").
			Times(1).
			Return(nil)

		suite.e.DELETE(path).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess)
	})
}

func (suite *HandlersTestSuite) TestGetLinkStats() {
	const path = "/api/v1/shorten/code1/stats"

	suite.Run("link not found", func() {
		suite.linkSvcMock.
			On("GetLinkStats", mock.Anything, "code1").
			Times(1).
			Return(nil, database.ErrLinkNotFound)

		suite.e.GET(path).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)
	})

	suite.Run("success", func() {
		link := &models.Link{
			ID:            1,
			ShortCode:     "code1",
			LongURL:       "https://example.com",
			AmountOfViews: 42,
		}

		suite.linkSvcMock.
			On("GetLinkStats", mock.Anything, "code1").
			Times(1).
			Return(link, nil)

		resp := suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess)

		resp.Value("data").Object().
			HasValue("short_code", "code1").
			HasValue("amount_of_views", 42)
	})
}

func (suite *HandlersTestSuite) TestValidateLink() {
	const path = "/api/v1/shorten/code1/validate"

	suite.Run("link not found", func() {
		suite.linkSvcMock.
			On("ValidateLink", mock.Anything, "code1", false).
			Times(1).
			Return(nil, database.ErrLinkNotFound)

		suite.e.POST(path).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)
	})

	suite.Run("validation cooldown", func() {
		suite.linkSvcMock.
			On("ValidateLink", mock.Anything, "code1", false).
			Times(1).
			Return(nil, service.ErrValidationCooldown)

		suite.e.POST(path).
			Expect().
			Status(http.StatusConflict).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ValidationCooldownResponse.Message)
	})

	suite.Run("forced validation", func() {
		link := &models.Link{
			ID:          1,
			ShortCode:   "code1",
			LongURL:     "https://example.com",
			LastChecked: time.Now(),
		}

		suite.linkSvcMock.
			On("ValidateLink", mock.Anything, "code1", true).
			Times(1).
			Return(link, nil)

		suite.e.POST(path).
			WithQuery("force", "true").
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess)
	})

	suite.Run("broken link", func() {
		link := &models.Link{
			ID:              1,
			ShortCode:       "code1",
			LongURL:         "https://example.com",
			IsBroken:        true,
			ValidationError: "URL not accessible.",
			LastChecked:     time.Now(),
		}

		suite.linkSvcMock.
			On("ValidateLink", mock.Anything, "code1", false).
			Times(1).
			Return(link, nil)

		resp := suite.e.POST(path).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess)

		resp.Value("data").Object().
			HasValue("is_broken", true).
			HasValue("validation_error", "URL not accessible.")
	})
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
