package medication

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/medications/parse", h.ParseMedication)
}

func (h *Handler) ParseMedication(c echo.Context) error {
	text := strings.TrimSpace(c.QueryParam("s"))
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter s is required")
	}
	parsed, err := h.svc.Parse(c.Request().Context(), text)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"parsed":    parsed,
		"canonical": parsed.String(),
	})
}
