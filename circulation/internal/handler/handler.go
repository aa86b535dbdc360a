package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/metrics"
	md "github.com/Astemirdum/library-circulation/pkg/middleware"
	"github.com/Astemirdum/library-circulation/pkg/validate"
)

type Handler struct {
	catalogSvc     CatalogService
	rosterSvc      RosterService
	circulationSvc CirculationService
	metrics        *metrics.Metrics
	log            *zap.Logger
}

func New(catalog CatalogService, roster RosterService, circulation CirculationService, m *metrics.Metrics, log *zap.Logger) *Handler {
	return &Handler{
		catalogSvc:     catalog,
		rosterSvc:      roster,
		circulationSvc: circulation,
		metrics:        m,
		log:            log.Named("handler"),
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPost, http.MethodDelete},
	}))
	e.Use(md.Metrics(h.metrics))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.POST("/books", h.CreateBook)
	api.GET("/books", h.SearchBooks)
	api.GET("/books/available", h.ListAvailableBooks)
	api.GET("/books/lookup/:token", h.LookupBook)
	api.GET("/books/:id", h.GetBook)
	api.DELETE("/books/:id", h.DeleteBook)

	api.POST("/students", h.CreateStudent)
	api.GET("/students", h.SearchStudents)
	api.GET("/students/:id", h.GetStudent)
	api.GET("/students/:id/issues", h.ListStudentIssues)
	api.DELETE("/students/:id", h.DeleteStudent)

	api.POST("/issues", h.IssueBook)
	api.POST("/issues/scan", h.IssueByBarcode)
	api.GET("/issues", h.ListOpenIssues)
	api.GET("/issues/:id", h.GetIssue)
	api.POST("/issues/:id/return", h.ReturnBook)
	api.POST("/returns/scan", h.ReturnByBarcode)

	api.GET("/fines", h.FineSummary)
	api.POST("/fines/estimate", h.EstimateFine)
	api.GET("/stats", h.Stats)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// httpError maps a service error onto its HTTP status.
func (h *Handler) httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrCapacity):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("internal error", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// bind decodes and validates the request body into req.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func paramID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id is invalid")
	}
	return id, nil
}
