package workqueue

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, *queueFixture, *echo.Echo) {
	t.Helper()
	f := newQueueFixture(t)
	return NewHandler(f.svc), f, echo.New()
}

func newActionContext(e *echo.Echo, userID uuid.UUID, itemID uuid.UUID, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(http.MethodPost, "/", nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", userID.String())
	c.SetParamNames("id")
	c.SetParamValues(itemID.String())
	return c, rec
}

func httpErrorCode(t *testing.T, err error) (int, string) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	m, ok := he.Message.(map[string]string)
	if !ok {
		t.Fatalf("expected map message, got %T", he.Message)
	}
	return he.Code, m["code"]
}

func TestHandler_ClaimItem(t *testing.T) {
	h, f, e := newTestHandler(t)
	q := f.addQueue(t, uuid.New(), "clinical")
	item := f.addPendingItem(t, q, "routine")
	userID := uuid.New()

	c, rec := newActionContext(e, userID, item.ID, "")
	if err := h.ClaimItem(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var claimed WorkQueueItem
	if err := json.Unmarshal(rec.Body.Bytes(), &claimed); err != nil {
		t.Fatal(err)
	}
	if claimed.Status != StatusAssigned {
		t.Errorf("status = %q", claimed.Status)
	}
}

func TestHandler_ClaimItem_Conflict(t *testing.T) {
	h, f, e := newTestHandler(t)
	q := f.addQueue(t, uuid.New(), "clinical")
	item := f.addPendingItem(t, q, "routine")

	c, _ := newActionContext(e, uuid.New(), item.ID, "")
	if err := h.ClaimItem(c); err != nil {
		t.Fatal(err)
	}

	c2, _ := newActionContext(e, uuid.New(), item.ID, "")
	err := h.ClaimItem(c2)
	if err == nil {
		t.Fatal("expected conflict")
	}
	status, code := httpErrorCode(t, err)
	if status != http.StatusConflict || code != "already_claimed" {
		t.Errorf("got %d %q, want 409 already_claimed", status, code)
	}
}

func TestHandler_ClaimItem_NotFound(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, _ := newActionContext(e, uuid.New(), uuid.New(), "")
	err := h.ClaimItem(c)
	if err == nil {
		t.Fatal("expected error")
	}
	status, code := httpErrorCode(t, err)
	if status != http.StatusNotFound || code != "not_found" {
		t.Errorf("got %d %q, want 404 not_found", status, code)
	}
}

func TestHandler_ClaimItem_Unauthenticated(t *testing.T) {
	h, f, e := newTestHandler(t)
	q := f.addQueue(t, uuid.New(), "clinical")
	item := f.addPendingItem(t, q, "routine")

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(item.ID.String())

	err := h.ClaimItem(c)
	if err == nil {
		t.Fatal("expected error")
	}
	status, code := httpErrorCode(t, err)
	if status != http.StatusUnauthorized || code != "unauthorized" {
		t.Errorf("got %d %q, want 401 unauthorized", status, code)
	}
}

func TestHandler_CompleteItem_NotOwner(t *testing.T) {
	h, f, e := newTestHandler(t)
	q := f.addQueue(t, uuid.New(), "clinical")
	item := f.addPendingItem(t, q, "routine")

	owner := uuid.New()
	c, _ := newActionContext(e, owner, item.ID, "")
	if err := h.ClaimItem(c); err != nil {
		t.Fatal(err)
	}

	c2, _ := newActionContext(e, uuid.New(), item.ID, "")
	err := h.CompleteItem(c2)
	if err == nil {
		t.Fatal("expected error")
	}
	status, code := httpErrorCode(t, err)
	if status != http.StatusForbidden || code != "not_owner" {
		t.Errorf("got %d %q, want 403 not_owner", status, code)
	}
}

func TestHandler_StartWork_InvalidTransition(t *testing.T) {
	h, f, e := newTestHandler(t)
	q := f.addQueue(t, uuid.New(), "clinical")
	item := f.addPendingItem(t, q, "routine")

	c, _ := newActionContext(e, uuid.New(), item.ID, "")
	err := h.StartWork(c)
	if err == nil {
		t.Fatal("expected error")
	}
	status, code := httpErrorCode(t, err)
	if status != http.StatusUnprocessableEntity || code != "invalid_transition" {
		t.Errorf("got %d %q, want 422 invalid_transition", status, code)
	}
}

func TestHandler_DeferItem_RequiresReason(t *testing.T) {
	h, f, e := newTestHandler(t)
	q := f.addQueue(t, uuid.New(), "clinical")
	item := f.addPendingItem(t, q, "routine")
	userID := uuid.New()

	c, _ := newActionContext(e, userID, item.ID, "")
	if err := h.ClaimItem(c); err != nil {
		t.Fatal(err)
	}

	c2, _ := newActionContext(e, userID, item.ID, `{}`)
	err := h.DeferItem(c2)
	if err == nil {
		t.Fatal("expected error")
	}
	status, code := httpErrorCode(t, err)
	if status != http.StatusBadRequest || code != "invalid_request" {
		t.Errorf("got %d %q, want 400 invalid_request", status, code)
	}
}

func TestHandler_DeferItem(t *testing.T) {
	h, f, e := newTestHandler(t)
	q := f.addQueue(t, uuid.New(), "clinical")
	item := f.addPendingItem(t, q, "routine")
	userID := uuid.New()

	c, _ := newActionContext(e, userID, item.ID, "")
	if err := h.ClaimItem(c); err != nil {
		t.Fatal(err)
	}

	c2, rec := newActionContext(e, userID, item.ID, `{"reason":"patient unreachable"}`)
	if err := h.DeferItem(c2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var deferred WorkQueueItem
	if err := json.Unmarshal(rec.Body.Bytes(), &deferred); err != nil {
		t.Fatal(err)
	}
	if deferred.Status != StatusPending || deferred.AssignedTo != nil {
		t.Errorf("deferred item = %+v", deferred)
	}
}

func TestHandler_EscalateItem(t *testing.T) {
	h, f, e := newTestHandler(t)
	q := f.addQueue(t, uuid.New(), "clinical")
	item := f.addPendingItem(t, q, "high")

	c, rec := newActionContext(e, uuid.New(), item.ID, `{"reason":"red flag symptoms"}`)
	if err := h.EscalateItem(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var escalated WorkQueueItem
	if err := json.Unmarshal(rec.Body.Bytes(), &escalated); err != nil {
		t.Fatal(err)
	}
	if escalated.Status != StatusEscalated || !escalated.RequiresPhysicianReview {
		t.Errorf("escalated item = %+v", escalated)
	}
}

func TestHandler_ListQueues(t *testing.T) {
	h, f, e := newTestHandler(t)
	clinicID := uuid.New()
	f.addQueue(t, clinicID, "clinical")
	f.addQueue(t, clinicID, "pharmacy")

	req := httptest.NewRequest(http.MethodGet, "/?clinic_id="+clinicID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListQueues(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var queues []*WorkQueue
	if err := json.Unmarshal(rec.Body.Bytes(), &queues); err != nil {
		t.Fatal(err)
	}
	if len(queues) != 2 {
		t.Errorf("got %d queues, want 2", len(queues))
	}
}

func TestHandler_ListItems(t *testing.T) {
	h, f, e := newTestHandler(t)
	q := f.addQueue(t, uuid.New(), "clinical")
	f.addPendingItem(t, q, "urgent")
	f.addPendingItem(t, q, "low")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(q.ID.String())

	if err := h.ListItems(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []*WorkQueueItem `json:"data"`
		Total int              `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Data) != 2 {
		t.Errorf("total=%d items=%d, want 2/2", resp.Total, len(resp.Data))
	}
	if resp.Data[0].Urgency != "urgent" {
		t.Errorf("first item urgency = %q, want urgent", resp.Data[0].Urgency)
	}
}

func TestHandler_TrackAndGetAfterHours(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.clock = time.Date(2025, 3, 10, 21, 0, 0, 0, time.Local)
	userID := uuid.New()
	clinicID := uuid.New()

	body := `{"clinic_id":"` + clinicID.String() + `","duration_minutes":45,"activity_type":"documentation"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", userID.String())

	if err := h.TrackAfterHoursWork(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/?user_id="+userID.String()+"&date=2025-03-10", nil)
	rec2 := httptest.NewRecorder()
	c2 := e.NewContext(req2, rec2)

	if err := h.GetAfterHoursMetrics(c2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var metric AfterHoursMetric
	if err := json.Unmarshal(rec2.Body.Bytes(), &metric); err != nil {
		t.Fatal(err)
	}
	if metric.TotalMinutes != 45 {
		t.Errorf("total = %d, want 45", metric.TotalMinutes)
	}
	if metric.MinutesByActivity["documentation"] != 45 {
		t.Errorf("buckets = %v", metric.MinutesByActivity)
	}
}

func TestHandler_GetAfterHours_NotFound(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/?user_id="+uuid.NewString()+"&date=2025-03-10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.GetAfterHoursMetrics(c)
	if err == nil {
		t.Fatal("expected error")
	}
	status, code := httpErrorCode(t, err)
	if status != http.StatusNotFound || code != "not_found" {
		t.Errorf("got %d %q, want 404 not_found", status, code)
	}
}
