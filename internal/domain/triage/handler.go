package triage

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/duniamed/duniamed-sub003/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Intake and batch control – staff roles with a clinic association.
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse", "front_desk"), auth.RequireClinic())
	g.POST("/triage/messages", h.TriageMessage)
	g.GET("/triage/rules", h.ListRules)
	g.POST("/batches/:id/process", h.ProcessBatch)
	g.GET("/batches/:id", h.GetBatch)
}

func apiError(status int, code, message string) *echo.HTTPError {
	return echo.NewHTTPError(status, map[string]string{"code": code, "message": message})
}

type triageRequest struct {
	MessageID *uuid.UUID `json:"message_id,omitempty"`
	ClinicID  uuid.UUID  `json:"clinic_id"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
	Sender    string     `json:"sender"`
	Content   string     `json:"content"`
}

type triageResponse struct {
	Message        *ClinicMessage  `json:"message"`
	Classification *Classification `json:"classification"`
	Routing        *RoutingResult  `json:"routing"`
}

func (h *Handler) TriageMessage(c echo.Context) error {
	var req triageRequest
	if err := c.Bind(&req); err != nil {
		return apiError(http.StatusBadRequest, "invalid_request", err.Error())
	}
	if req.Content == "" {
		return apiError(http.StatusBadRequest, "invalid_request", "content is required")
	}

	msg := &ClinicMessage{
		ClinicID:  req.ClinicID,
		PatientID: req.PatientID,
		Sender:    req.Sender,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}
	// Client-supplied ids make intake idempotent across retries.
	if req.MessageID != nil {
		msg.ID = *req.MessageID
	} else {
		msg.ID = uuid.New()
	}

	cls, routing, err := h.svc.ClassifyAndRoute(c.Request().Context(), msg)
	if err != nil {
		if errors.Is(err, ErrNoClinicAssociation) {
			return apiError(http.StatusBadRequest, "no_clinic_association", "message has no clinic association")
		}
		return apiError(http.StatusInternalServerError, "triage_failed", err.Error())
	}

	return c.JSON(http.StatusCreated, triageResponse{
		Message:        msg,
		Classification: cls,
		Routing:        routing,
	})
}

func (h *Handler) ListRules(c echo.Context) error {
	clinicID, err := uuid.Parse(c.QueryParam("clinic_id"))
	if err != nil {
		return apiError(http.StatusBadRequest, "invalid_request", "clinic_id is required")
	}
	rules, err := h.svc.ListRules(c.Request().Context(), clinicID)
	if err != nil {
		return apiError(http.StatusInternalServerError, "internal_error", err.Error())
	}
	return c.JSON(http.StatusOK, rules)
}

type processBatchResponse struct {
	Batch  *MessageBatch `json:"batch"`
	Routed int           `json:"routed"`
}

func (h *Handler) ProcessBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apiError(http.StatusBadRequest, "invalid_request", "invalid batch id")
	}
	batch, routed, err := h.svc.ProcessBatch(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apiError(http.StatusNotFound, "not_found", "batch not found")
		}
		return apiError(http.StatusInternalServerError, "batch_processing_failed", err.Error())
	}
	return c.JSON(http.StatusOK, processBatchResponse{Batch: batch, Routed: routed})
}

func (h *Handler) GetBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apiError(http.StatusBadRequest, "invalid_request", "invalid batch id")
	}
	batch, err := h.svc.GetBatch(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apiError(http.StatusNotFound, "not_found", "batch not found")
		}
		return apiError(http.StatusInternalServerError, "internal_error", err.Error())
	}
	return c.JSON(http.StatusOK, batch)
}
