package search

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc          *Service
	reindexBatch int
}

func NewHandler(svc *Service, reindexBatch int) *Handler {
	return &Handler{svc: svc, reindexBatch: reindexBatch}
}

func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.GET("/search", h.Search)
	api.GET("/search/single", h.SearchSingle)

	admin.POST("/index/rebuild", h.Reindex)
	admin.GET("/index/status", h.IndexStatus)
}

func idListParam(c echo.Context, param string) ([]int64, error) {
	raw := c.QueryParam(param)
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+param+" id")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func requestFromQuery(c echo.Context) (Request, error) {
	req := NewRequest(strings.TrimSpace(c.QueryParam("q")))

	ancestors, err := idListParam(c, "ancestor")
	if err != nil {
		return req, err
	}
	req = req.WithRecursiveParents(ancestors...)

	parents, err := idListParam(c, "parent")
	if err != nil {
		return req, err
	}
	req = req.WithDirectParents(parents...)

	if c.QueryParam("active") == "true" {
		req = req.OnlyActive()
	}
	if c.QueryParam("exclude_fsn") == "true" {
		req = req.WithoutFullySpecifiedNames()
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return req, echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		req = req.WithLimit(limit)
	}
	return req, nil
}

func searchError(err error) error {
	switch {
	case errors.Is(err, ErrBadQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrIndexUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrNoMatch):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) Search(c echo.Context) error {
	req, err := requestFromQuery(c)
	if err != nil {
		return err
	}
	results, err := h.svc.Search(c.Request().Context(), req)
	if err != nil {
		return searchError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"results": results, "count": len(results)})
}

func (h *Handler) SearchSingle(c echo.Context) error {
	req, err := requestFromQuery(c)
	if err != nil {
		return err
	}
	result, err := h.svc.SearchSingle(c.Request().Context(), req)
	if err != nil {
		return searchError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Reindex(c echo.Context) error {
	if h.svc.Reindexing() {
		return echo.NewHTTPError(http.StatusConflict, ErrReindexInProgress.Error())
	}
	logger := h.svc.logger
	ctx := context.WithoutCancel(c.Request().Context())
	go func() {
		if _, err := h.svc.ReindexAll(ctx, h.reindexBatch); err != nil {
			logger.Error().Err(err).Msg("index rebuild aborted")
		}
	}()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "reindex started"})
}

func (h *Handler) IndexStatus(c echo.Context) error {
	body := map[string]interface{}{"running": h.svc.Reindexing()}
	if size, err := h.svc.IndexSize(c.Request().Context()); err == nil {
		body["documents"] = size
	}
	if progress := h.svc.Progress(); progress != nil {
		body["progress"] = progress
	}
	return c.JSON(http.StatusOK, body)
}
