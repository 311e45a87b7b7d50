package concept

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRebuildClosureEndpoint_ConflictWhileRunning(t *testing.T) {
	svc, _, _, _ := newTestGraph()
	svc.rebuilding.Store(true)
	h := NewHandler(svc, 2)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/closure/rebuild", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.RebuildClosure(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusConflict {
		t.Errorf("code = %d, want 409", httpErr.Code)
	}
	if httpErr.Message != ErrRebuildInProgress.Error() {
		t.Errorf("message = %v, want %q", httpErr.Message, ErrRebuildInProgress.Error())
	}
}
