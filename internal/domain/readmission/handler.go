package readmission

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/readmission/dashboard/pkg/pagination"
)

type Handler struct {
	svc      *Service
	pageSize int
}

func NewHandler(svc *Service, pageSize int) *Handler {
	return &Handler{svc: svc, pageSize: pageSize}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/filters", h.GetFilterOptions)
	api.GET("/dashboard", h.GetDashboard)
	api.GET("/encounters", h.ListEncounters)
}

// CriteriaFromContext reads filter criteria from query parameters. Empty
// values and "all" leave a field unconstrained. When only one stay bound is
// given the other defaults to the dataset bound, or is left open when the
// dataset has no stay values.
func CriteriaFromContext(c echo.Context, ds *Dataset) (FilterCriteria, error) {
	var fc FilterCriteria
	params := []struct {
		name  string
		field Field
	}{
		{"age", FieldAge},
		{"admission_type", FieldAdmissionType},
		{"insulin", FieldInsulin},
		{"gender", FieldGender},
		{"race", FieldRace},
	}
	for _, p := range params {
		if v := c.QueryParam(p.name); v != "" && v != "all" {
			fc = fc.With(p.field, v)
		}
	}

	minStr, maxStr := c.QueryParam("stay_min"), c.QueryParam("stay_max")
	if minStr == "" && maxStr == "" {
		return fc, nil
	}

	rng := ds.DefaultStay()
	if minStr != "" {
		n, err := strconv.Atoi(minStr)
		if err != nil {
			return fc, fmt.Errorf("invalid stay_min %q", minStr)
		}
		rng.Min = n
	}
	if maxStr != "" {
		n, err := strconv.Atoi(maxStr)
		if err != nil {
			return fc, fmt.Errorf("invalid stay_max %q", maxStr)
		}
		rng.Max = n
	}
	fc.Stay = &rng
	return fc, nil
}

// HTTPError maps service errors to HTTP errors.
func HTTPError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrUnknownColumn):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) GetFilterOptions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Options())
}

func (h *Handler) GetDashboard(c echo.Context) error {
	fc, err := CriteriaFromContext(c, h.svc.Dataset())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cols, err := ParseColumns(c.QueryParam("columns"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	d, err := h.svc.DashboardWithColumns(fc, cols)
	if err != nil {
		return HTTPError(err)
	}

	pg := pagination.FromContextWithDefault(c, h.pageSize)
	d.Listing.Rows = pagination.Slice(d.Listing.Rows, pg)
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListEncounters(c echo.Context) error {
	fc, err := CriteriaFromContext(c, h.svc.Dataset())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cols, err := ParseColumns(c.QueryParam("columns"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	listing, err := h.svc.Listing(fc, cols)
	if err != nil {
		return HTTPError(err)
	}

	pg := pagination.FromContextWithDefault(c, h.pageSize)
	total := len(listing.Rows)
	resp := pagination.NewResponse(pagination.Slice(listing.Rows, pg), total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, c.QueryParams(), total)
	return c.JSON(http.StatusOK, resp)
}
