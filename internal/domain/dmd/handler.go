package dmd

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dmd/:id", h.GetProduct)
	api.GET("/dmd/:id/:tier", h.Navigate)
}

func productParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid concept id")
	}
	return id, nil
}

func (h *Handler) GetProduct(c echo.Context) error {
	id, err := productParam(c)
	if err != nil {
		return err
	}
	tier, err := h.svc.TierOf(c.Request().Context(), id)
	if errors.Is(err, ErrUnknownTier) {
		return echo.NewHTTPError(http.StatusNotFound, "concept is not a dm+d product")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, Product{Tier: tier, ConceptID: id})
}

func (h *Handler) Navigate(c echo.Context) error {
	id, err := productParam(c)
	if err != nil {
		return err
	}
	target, err := ParseTier(c.Param("tier"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown product tier")
	}

	ctx := c.Request().Context()
	tier, err := h.svc.TierOf(ctx, id)
	if errors.Is(err, ErrUnknownTier) {
		return echo.NewHTTPError(http.StatusNotFound, "concept is not a dm+d product")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	products, err := h.svc.Navigate(ctx, Product{Tier: tier, ConceptID: id}, target)
	if errors.Is(err, ErrNoPath) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"product": Product{Tier: tier, ConceptID: id},
		"tier":    target.String(),
		"results": products,
	})
}
