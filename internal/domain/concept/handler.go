package concept

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"

	"github.com/clinterm/clinterm/pkg/pagination"
)

type Handler struct {
	svc          *Service
	rebuildBatch int
}

func NewHandler(svc *Service, rebuildBatch int) *Handler {
	return &Handler{svc: svc, rebuildBatch: rebuildBatch}
}

func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.GET("/concepts", h.ListConcepts)
	api.GET("/concepts/:id", h.GetConcept)
	api.GET("/concepts/:id/descriptions", h.GetDescriptions)
	api.GET("/concepts/:id/preferred", h.GetPreferredDescription)
	api.GET("/concepts/:id/parents", h.GetParents)
	api.GET("/concepts/:id/children", h.GetChildren)
	api.GET("/concepts/:id/ancestors", h.GetAncestors)
	api.GET("/concepts/:id/is-a", h.IsA)

	admin.POST("/closure/rebuild", h.RebuildClosure)
	admin.GET("/closure/status", h.ClosureStatus)
}

func conceptIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid concept id")
	}
	return id, nil
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *Handler) ListConcepts(c echo.Context) error {
	p := pagination.FromContext(c)
	concepts, total, err := h.svc.ListConcepts(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(concepts, total, p.Limit, p.Offset))
}

func (h *Handler) GetConcept(c echo.Context) error {
	id, err := conceptIDParam(c)
	if err != nil {
		return err
	}
	concept, err := h.svc.GetConcept(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "concept not found")
	}
	return c.JSON(http.StatusOK, concept)
}

func (h *Handler) GetDescriptions(c echo.Context) error {
	id, err := conceptIDParam(c)
	if err != nil {
		return err
	}
	descs, err := h.svc.Descriptions(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, descs)
}

func (h *Handler) GetPreferredDescription(c echo.Context) error {
	id, err := conceptIDParam(c)
	if err != nil {
		return err
	}
	tags, _, _ := language.ParseAcceptLanguage(c.Request().Header.Get("Accept-Language"))
	desc, err := h.svc.PreferredDescription(c.Request().Context(), id, tags)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, desc)
}

func (h *Handler) GetParents(c echo.Context) error {
	return h.related(c, h.svc.DirectParents)
}

func (h *Handler) GetChildren(c echo.Context) error {
	return h.related(c, h.svc.DirectChildren)
}

func (h *Handler) related(c echo.Context, fn func(ctx context.Context, conceptID, typeID int64) ([]int64, error)) error {
	id, err := conceptIDParam(c)
	if err != nil {
		return err
	}
	typeID := IsA
	if raw := c.QueryParam("type"); raw != "" {
		typeID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid relationship type id")
		}
	}
	ids, err := fn(c.Request().Context(), id, typeID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"concept_id": id, "type_id": typeID, "concept_ids": ids})
}

func (h *Handler) GetAncestors(c echo.Context) error {
	id, err := conceptIDParam(c)
	if err != nil {
		return err
	}
	set, err := h.svc.Ancestors(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	ids := make([]int64, 0, len(set))
	for ancestor := range set {
		ids = append(ids, ancestor)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"concept_id": id, "ancestor_ids": ids})
}

func (h *Handler) IsA(c echo.Context) error {
	id, err := conceptIDParam(c)
	if err != nil {
		return err
	}
	ancestors, err := parseIDList(c.QueryParam("ancestor"))
	if err != nil || len(ancestors) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ancestor query parameter is required")
	}
	ok, err := h.svc.IsDescendantOfAny(c.Request().Context(), id, ancestors)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"concept_id": id, "ancestor_ids": ancestors, "result": ok})
}

func (h *Handler) RebuildClosure(c echo.Context) error {
	if h.svc.Rebuilding() {
		return echo.NewHTTPError(http.StatusConflict, ErrRebuildInProgress.Error())
	}
	logger := h.svc.logger
	ctx := context.WithoutCancel(c.Request().Context())
	go func() {
		if _, err := h.svc.RebuildAll(ctx, h.rebuildBatch); err != nil {
			logger.Error().Err(err).Msg("closure rebuild aborted")
		}
	}()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "rebuild started"})
}

func (h *Handler) ClosureStatus(c echo.Context) error {
	progress := h.svc.Progress()
	if progress == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"running": h.svc.Rebuilding()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"running":  h.svc.Rebuilding(),
		"progress": progress,
	})
}
