package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Get(t *testing.T) {
	t.Parallel()

	mock := NewMockDoer().AddResponse(http.StatusOK, `{"frames": 42}`)
	c := NewClient("http://bridge.local:8090/", mock)

	var out struct {
		Frames int `json:"frames"`
	}
	if err := c.Get(context.Background(), "/api/status", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.Frames != 42 {
		t.Errorf("frames = %d, want 42", out.Frames)
	}

	req, body := mock.Request(0)
	if req.Method != http.MethodGet {
		t.Errorf("method = %s", req.Method)
	}
	if got := req.URL.String(); got != "http://bridge.local:8090/api/status" {
		t.Errorf("url = %s", got)
	}
	if body != "" {
		t.Errorf("GET sent body %q", body)
	}
}

func TestClient_Post(t *testing.T) {
	t.Parallel()

	mock := NewMockDoer().AddResponse(http.StatusOK, `{"history_capacity": 12}`)
	c := NewClient("http://bridge.local:8090", mock)

	var out map[string]int
	if err := c.Post(context.Background(), "/api/config", map[string]int{"history_capacity": 12}, &out); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if out["history_capacity"] != 12 {
		t.Errorf("out = %v", out)
	}

	req, body := mock.Request(0)
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("content-type = %q", req.Header.Get("Content-Type"))
	}
	if body != `{"history_capacity":12}` {
		t.Errorf("body = %s", body)
	}
}

func TestClient_APIError(t *testing.T) {
	t.Parallel()

	mock := NewMockDoer().
		AddResponse(http.StatusNotFound, `{"error": "unknown device \"x\""}`).
		AddResponse(http.StatusBadGateway, "upstream gone")
	c := NewClient("http://bridge.local", mock)

	err := c.Post(context.Background(), "/api/devices/x/identify", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != `unknown device "x"` {
		t.Errorf("apiErr = %+v", apiErr)
	}

	err = c.Get(context.Background(), "/api/status", nil)
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Message != "upstream gone" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestClient_TransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	c := NewClient("http://bridge.local", NewMockDoer().AddError(boom))
	if err := c.Get(context.Background(), "/health", nil); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestClient_DecodeError(t *testing.T) {
	t.Parallel()

	c := NewClient("http://bridge.local", NewMockDoer().AddResponse(http.StatusOK, "not json"))
	var out map[string]any
	if err := c.Get(context.Background(), "/api/status", &out); err == nil {
		t.Error("expected decode error")
	}
}

func TestClient_RealServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			NotFound(w, "no route")
			return
		}
		WriteJSONOK(w, map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	var out map[string]string
	if err := c.Get(context.Background(), "/health", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %q", out["status"])
	}

	var apiErr *APIError
	if err := c.Get(context.Background(), "/nope", nil); !errors.As(err, &apiErr) || apiErr.Message != "no route" {
		t.Errorf("err = %v", err)
	}
}

func TestMockDoer_DefaultResponse(t *testing.T) {
	t.Parallel()

	mock := NewMockDoer()
	c := NewClient("http://bridge.local", mock)
	var out map[string]any
	if err := c.Get(context.Background(), "/api/poses", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("requests = %d", mock.RequestCount())
	}
	if req, _ := mock.Request(5); req != nil {
		t.Error("out-of-range request should be nil")
	}
}
