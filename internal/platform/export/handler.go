package export

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/readmission/dashboard/internal/domain/readmission"
)

// Handler serves filtered listings as file downloads.
type Handler struct {
	svc *readmission.Service
}

func NewHandler(svc *readmission.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/encounters/export", h.HandleExport)
}

// HandleExport handles GET /encounters/export?format=csv|parquet with the
// same filter parameters as the dashboard.
func (h *Handler) HandleExport(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatParquet {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
	}

	fc, err := readmission.CriteriaFromContext(c, h.svc.Dataset())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var buf bytes.Buffer
	switch format {
	case FormatParquet:
		view, err := h.svc.View(fc)
		if err != nil {
			return readmission.HTTPError(err)
		}
		if err := WriteParquet(&buf, view); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	default:
		cols, err := readmission.ParseColumns(c.QueryParam("columns"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		listing, err := h.svc.Listing(fc, cols)
		if err != nil {
			return readmission.HTTPError(err)
		}
		if err := WriteCSV(&buf, listing); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"encounters_%s.%s\"", time.Now().UTC().Format("20060102_150405"), format))
	return c.Blob(http.StatusOK, ContentType(format), buf.Bytes())
}
