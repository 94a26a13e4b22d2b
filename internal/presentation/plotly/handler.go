package plotly

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/readmission/dashboard/internal/domain/readmission"
)

//go:embed index.html
var indexHTML []byte

// Page is the payload behind the browser dashboard.
type Page struct {
	Total   int                    `json:"total"`
	Matched int                    `json:"matched"`
	KPIs    readmission.KPISummary `json:"kpis"`
	Band    string                 `json:"band"`
	Figures Figures                `json:"figures"`
}

type Handler struct {
	svc *readmission.Service
}

func NewHandler(svc *readmission.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the figure API on api and the HTML page on root.
func (h *Handler) RegisterRoutes(root *echo.Echo, api *echo.Group) {
	root.GET("/", h.Index)
	api.GET("/figures", h.GetFigures)
}

func (h *Handler) Index(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, indexHTML)
}

func (h *Handler) GetFigures(c echo.Context) error {
	fc, err := readmission.CriteriaFromContext(c, h.svc.Dataset())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Dashboard(fc)
	if err != nil {
		return readmission.HTTPError(err)
	}
	return c.JSON(http.StatusOK, NewPage(d))
}

// NewPage builds the browser payload for d.
func NewPage(d *readmission.Dashboard) Page {
	return Page{
		Total:   d.Total,
		Matched: d.Matched,
		KPIs:    d.KPIs,
		Band:    d.Gauge.Band,
		Figures: Build(d),
	}
}
