// internal/utils/response_test.go
package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
)

type bindTarget struct {
	PortName string `json:"port_name" binding:"required"`
	Encoding string `json:"encoding" binding:"omitempty,oneof=text hex"`
}

func bindRequest(t *testing.T, body string) APIResponse {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("request_id", "req-1")

	var target bindTarget
	if err := c.ShouldBindJSON(&target); err != nil {
		BindErrorResponse(c, err)
	} else {
		t.Fatalf("bind of %s succeeded", body)
	}

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestBindErrorResponseValidation(t *testing.T) {
	resp := bindRequest(t, `{"encoding":"utf16"}`)

	if resp.Success || resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected response %+v", resp)
	}
	want := map[string]string{
		"port_name": "is required",
		"encoding":  "must be one of: text hex",
	}
	if diff := cmp.Diff(want, resp.Error.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if resp.RequestID != "req-1" {
		t.Errorf("request id = %q", resp.RequestID)
	}
}

func TestBindErrorResponseMalformed(t *testing.T) {
	resp := bindRequest(t, `{"port_name":`)

	if resp.Error == nil || resp.Error.Code != "BAD_REQUEST" || resp.Error.Details == "" {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if len(resp.Error.Fields) != 0 {
		t.Errorf("fields = %v, want none", resp.Error.Fields)
	}
}

func TestErrorResponseCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for status, code := range map[int]string{
		http.StatusNotFound:       "NOT_FOUND",
		http.StatusConflict:       "CONFLICT",
		http.StatusGatewayTimeout: "TIMEOUT",
		http.StatusTeapot:         "UNKNOWN_ERROR",
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		ErrorResponse(c, status, "failed", errors.New("boom"))

		var resp APIResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if w.Code != status || resp.Error.Code != code || resp.Error.Details != "boom" {
			t.Errorf("status %d: got %d %+v", status, w.Code, resp.Error)
		}
	}
}
