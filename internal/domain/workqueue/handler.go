package workqueue

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/duniamed/duniamed-sub003/internal/platform/auth"
	"github.com/duniamed/duniamed-sub003/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse", "front_desk"))
	g.GET("/work-queues", h.ListQueues)
	g.GET("/work-queues/:id/items", h.ListItems)
	g.GET("/work-queue-items/:id", h.GetItem)
	g.POST("/work-queue-items/:id/claim", h.ClaimItem)
	g.POST("/work-queue-items/:id/start", h.StartWork)
	g.POST("/work-queue-items/:id/complete", h.CompleteItem)
	g.POST("/work-queue-items/:id/defer", h.DeferItem)
	g.POST("/work-queue-items/:id/escalate", h.EscalateItem)
	g.GET("/metrics/after-hours", h.GetAfterHoursMetrics)
	g.POST("/metrics/after-hours", h.TrackAfterHoursWork)
}

func apiError(status int, code, message string) *echo.HTTPError {
	return echo.NewHTTPError(status, map[string]string{"code": code, "message": message})
}

// actingUser resolves the authenticated user id set by the auth middleware.
func actingUser(c echo.Context) (uuid.UUID, error) {
	raw, _ := c.Get("user_id").(string)
	if raw == "" {
		raw = auth.UserIDFromContext(c.Request().Context())
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apiError(http.StatusUnauthorized, "unauthorized", "no authenticated user")
	}
	return id, nil
}

func itemParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apiError(http.StatusBadRequest, "invalid_request", "invalid item id")
	}
	return id, nil
}

// mapItemError converts service sentinels to the HTTP error envelope.
func mapItemError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apiError(http.StatusNotFound, "not_found", "work queue item not found")
	case errors.Is(err, ErrAlreadyClaimed):
		return apiError(http.StatusConflict, "already_claimed", "item already claimed by another user")
	case errors.Is(err, ErrNotOwner):
		return apiError(http.StatusForbidden, "not_owner", "item is not assigned to you")
	case errors.Is(err, ErrInvalidTransition):
		return apiError(http.StatusUnprocessableEntity, "invalid_transition", "item state does not allow this operation")
	default:
		return apiError(http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *Handler) ListQueues(c echo.Context) error {
	clinicID, err := uuid.Parse(c.QueryParam("clinic_id"))
	if err != nil {
		return apiError(http.StatusBadRequest, "invalid_request", "clinic_id is required")
	}
	queues, err := h.svc.ListQueues(c.Request().Context(), clinicID)
	if err != nil {
		return apiError(http.StatusInternalServerError, "internal_error", err.Error())
	}
	return c.JSON(http.StatusOK, queues)
}

func (h *Handler) ListItems(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apiError(http.StatusBadRequest, "invalid_request", "invalid queue id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListItems(c.Request().Context(), queueID, pg.Limit, pg.Offset)
	if err != nil {
		return apiError(http.StatusInternalServerError, "internal_error", err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetItem(c echo.Context) error {
	id, err := itemParam(c)
	if err != nil {
		return err
	}
	item, err := h.svc.GetItem(c.Request().Context(), id)
	if err != nil {
		return mapItemError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) ClaimItem(c echo.Context) error {
	id, err := itemParam(c)
	if err != nil {
		return err
	}
	userID, err := actingUser(c)
	if err != nil {
		return err
	}
	item, err := h.svc.Claim(c.Request().Context(), id, userID)
	if err != nil {
		return mapItemError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) StartWork(c echo.Context) error {
	id, err := itemParam(c)
	if err != nil {
		return err
	}
	userID, err := actingUser(c)
	if err != nil {
		return err
	}
	item, err := h.svc.StartWork(c.Request().Context(), id, userID)
	if err != nil {
		return mapItemError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) CompleteItem(c echo.Context) error {
	id, err := itemParam(c)
	if err != nil {
		return err
	}
	userID, err := actingUser(c)
	if err != nil {
		return err
	}
	item, err := h.svc.Complete(c.Request().Context(), id, userID)
	if err != nil {
		return mapItemError(err)
	}
	return c.JSON(http.StatusOK, item)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) DeferItem(c echo.Context) error {
	id, err := itemParam(c)
	if err != nil {
		return err
	}
	userID, err := actingUser(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return apiError(http.StatusBadRequest, "invalid_request", err.Error())
	}
	if req.Reason == "" {
		return apiError(http.StatusBadRequest, "invalid_request", "reason is required")
	}
	item, err := h.svc.Defer(c.Request().Context(), id, userID, req.Reason)
	if err != nil {
		return mapItemError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) EscalateItem(c echo.Context) error {
	id, err := itemParam(c)
	if err != nil {
		return err
	}
	userID, err := actingUser(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return apiError(http.StatusBadRequest, "invalid_request", err.Error())
	}
	item, err := h.svc.Escalate(c.Request().Context(), id, userID, req.Reason)
	if err != nil {
		return mapItemError(err)
	}
	return c.JSON(http.StatusOK, item)
}

type trackWorkRequest struct {
	ClinicID        uuid.UUID `json:"clinic_id"`
	DurationMinutes int       `json:"duration_minutes"`
	ActivityType    string    `json:"activity_type"`
}

func (h *Handler) TrackAfterHoursWork(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return err
	}
	var req trackWorkRequest
	if err := c.Bind(&req); err != nil {
		return apiError(http.StatusBadRequest, "invalid_request", err.Error())
	}
	if req.DurationMinutes <= 0 {
		return apiError(http.StatusBadRequest, "invalid_request", "duration_minutes must be positive")
	}
	if err := h.svc.TrackWork(c.Request().Context(), userID, req.ClinicID, req.DurationMinutes, req.ActivityType); err != nil {
		return apiError(http.StatusInternalServerError, "internal_error", err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetAfterHoursMetrics(c echo.Context) error {
	userID, err := uuid.Parse(c.QueryParam("user_id"))
	if err != nil {
		id, authErr := actingUser(c)
		if authErr != nil {
			return apiError(http.StatusBadRequest, "invalid_request", "user_id is required")
		}
		userID = id
	}
	date, err := time.ParseInLocation("2006-01-02", c.QueryParam("date"), time.Local)
	if err != nil {
		return apiError(http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
	}
	metric, err := h.svc.GetMetrics(c.Request().Context(), userID, date)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apiError(http.StatusNotFound, "not_found", "no after-hours metrics for that day")
		}
		return apiError(http.StatusInternalServerError, "internal_error", err.Error())
	}
	return c.JSON(http.StatusOK, metric)
}
