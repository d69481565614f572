package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/david/holiday-watch/internal/db"
	"github.com/david/holiday-watch/internal/fingerprint"
	"github.com/david/holiday-watch/internal/ingest"
	"github.com/david/holiday-watch/internal/models"
	"github.com/david/holiday-watch/internal/monitor"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Store is the read side the handlers need. *db.Store satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetFingerprint(ctx context.Context, id uuid.UUID) (*models.Fingerprint, error)
	ListRuns(ctx context.Context, params db.RunListParams) ([]models.FetchRun, error)
	ListOffers(ctx context.Context, providerCode string) ([]models.Offer, error)
}

type Previewer interface {
	Preview(ctx context.Context, req monitor.PreviewRequest) (*monitor.PreviewResult, error)
}

type Syncer interface {
	Sync(ctx context.Context, profile models.Profile) (fingerprint.SyncResult, error)
}

// Providers is satisfied by *ingest.AdapterRegistry.
type Providers interface {
	Codes() []string
	Get(code string) (ingest.Adapter, error)
}

type Options struct {
	AdminSecret    string
	CORSOrigins    []string
	PreviewTimeout time.Duration
}

type Server struct {
	Echo      *echo.Echo
	store     Store
	previewer Previewer
	syncer    Syncer
	providers Providers
	opts      Options
	log       *logrus.Entry
}

func NewServer(store Store, previewer Previewer, syncer Syncer, providers Providers, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	origins := append([]string{"http://localhost:4200"}, opts.CORSOrigins...)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	if opts.PreviewTimeout <= 0 {
		opts.PreviewTimeout = 60 * time.Second
	}

	s := &Server{
		Echo:      e,
		store:     store,
		previewer: previewer,
		syncer:    syncer,
		providers: providers,
		opts:      opts,
		log:       logrus.WithField("component", "api"),
	}
	if s.opts.AdminSecret == "" {
		s.opts.AdminSecret = ephemeralSecret()
		s.log.Warn("Admin secret is not set; using ephemeral in-memory secret")
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.Echo.Group("/api/v1")
	api.GET("/providers", s.handleListProviders)
	api.GET("/offers", s.handleListOffers)
	api.GET("/fingerprints/:id/runs", s.handleListFingerprintRuns)

	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/preview", s.handleAdhocPreview)
	admin.POST("/profiles/:id/preview", s.handleProfilePreview)
	admin.POST("/profiles/:id/sync", s.handleProfileSync)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": "database unreachable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type providerInfo struct {
	Code    string `json:"code"`
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleListProviders(c echo.Context) error {
	out := []providerInfo{}
	for _, code := range s.providers.Codes() {
		a, err := s.providers.Get(code)
		if err != nil {
			continue
		}
		info := providerInfo{Code: code, Enabled: a.IsEnabled()}
		if named, ok := a.(interface{ Name() string }); ok {
			info.Name = named.Name()
		}
		out = append(out, info)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleListOffers(c echo.Context) error {
	provider := strings.ToLower(strings.TrimSpace(c.QueryParam("provider")))
	offers, err := s.store.ListOffers(c.Request().Context(), provider)
	if err != nil {
		return s.storeError(c, err)
	}
	if offers == nil {
		offers = []models.Offer{}
	}
	return c.JSON(http.StatusOK, offers)
}

func (s *Server) handleListFingerprintRuns(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid fingerprint id"})
	}
	ctx := c.Request().Context()
	if _, err := s.store.GetFingerprint(ctx, id); err != nil {
		return s.storeError(c, err)
	}

	limit := 50
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}
	runs, err := s.store.ListRuns(ctx, db.RunListParams{
		FingerprintID: &id,
		RunStatus:     strings.ToUpper(c.QueryParam("status")),
		Limit:         limit,
	})
	if err != nil {
		return s.storeError(c, err)
	}
	if runs == nil {
		runs = []models.FetchRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleProfilePreview(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid profile id"})
	}
	req, err := decodePreviewRequest(c, profilePreviewSchema)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	req.ProfileID = &id
	req.Intent = nil
	return s.runPreview(c, req)
}

func (s *Server) handleAdhocPreview(c echo.Context) error {
	req, err := decodePreviewRequest(c, adhocPreviewSchema)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	req.ProfileID = nil
	return s.runPreview(c, req)
}

func (s *Server) runPreview(c echo.Context, req monitor.PreviewRequest) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.opts.PreviewTimeout)
	defer cancel()

	res, err := s.previewer.Preview(ctx, req)
	switch {
	case errors.Is(err, monitor.ErrNoIntent):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleProfileSync(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid profile id"})
	}
	ctx := c.Request().Context()
	profile, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return s.storeError(c, err)
	}
	res, err := s.syncer.Sync(ctx, *profile)
	if err != nil {
		s.log.WithError(err).WithField("profile_id", id).Warn("Fingerprint sync failed")
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) storeError(c echo.Context, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	s.log.WithError(err).WithField("path", c.Path()).Error("Request failed")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret := []byte(s.opts.AdminSecret)

		if h := c.Request().Header.Get("X-Admin-Secret"); h != "" && subtle.ConstantTimeCompare([]byte(h), secret) == 1 {
			return next(c)
		}
		authHeader := c.Request().Header.Get("Authorization")
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if subtle.ConstantTimeCompare([]byte(authHeader[7:]), secret) == 1 {
				return next(c)
			}
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func ephemeralSecret() string {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("generate admin secret: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
