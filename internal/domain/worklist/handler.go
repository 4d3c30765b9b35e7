package worklist

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dimed/hisris/pkg/pagination"
)

// Handler exposes the worklist query used by scheduling and worklist UIs.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/worklist", h.ListActive)
	api.GET("/worklist/:order_id", h.GetEntry)
}

func (h *Handler) ListActive(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Active(c.Request().Context(), c.QueryParam("modality"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetEntry(c echo.Context) error {
	e, err := h.svc.Get(c.Request().Context(), c.Param("order_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "worklist entry not found")
	}
	return c.JSON(http.StatusOK, e)
}
