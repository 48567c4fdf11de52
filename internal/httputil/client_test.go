package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStandardClient_Wraps(t *testing.T) {
	customClient := &http.Client{}
	client := NewStandardClient(customClient)

	if client.Client != customClient {
		t.Error("expected custom client to be wrapped")
	}
	if NewStandardClient(nil).Client != http.DefaultClient {
		t.Error("nil should fall back to http.DefaultClient")
	}
}

func TestDoJSON_RoundTrip(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"answer": 42}`)

	var out struct {
		Answer int `json:"answer"`
	}
	err := DoJSON(context.Background(), mock, http.MethodPost, "http://picker/orders", map[string]string{"id": "o-1"}, &out)
	if err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if out.Answer != 42 {
		t.Errorf("answer = %d, want 42", out.Answer)
	}

	if mock.RequestCount() != 1 {
		t.Fatalf("got %d requests, want 1", mock.RequestCount())
	}
	req := mock.Requests[0]
	if req.Method != http.MethodPost || req.URL.Path != "/orders" {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
	if mock.Bodies[0] != `{"id":"o-1"}` {
		t.Errorf("body = %q", mock.Bodies[0])
	}
}

func TestDoJSON_StatusError(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusBadGateway, `{"error": "arm fault"}`)
	mock.AddResponse(http.StatusTeapot, "short and stout")

	err := DoJSON(context.Background(), mock, http.MethodGet, "http://picker/position", nil, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusBadGateway || se.Message != "arm fault" {
		t.Errorf("status error = %+v", se)
	}

	err = DoJSON(context.Background(), mock, http.MethodGet, "http://picker/position", nil, nil)
	if !errors.As(err, &se) || se.Message != "short and stout" {
		t.Errorf("non-JSON error body: %v", err)
	}
}

func TestDoJSON_TransportError(t *testing.T) {
	mock := NewMockHTTPClient()
	boom := errors.New("connection refused")
	mock.AddErrorResponse(boom)

	err := DoJSON(context.Background(), mock, http.MethodGet, "http://picker/version", nil, nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestDoJSON_BadResponseBody(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `not json`)

	var out map[string]any
	if err := DoJSON(context.Background(), mock, http.MethodGet, "http://picker/version", nil, &out); err == nil {
		t.Error("expected decode error")
	}
}

func TestDoJSON_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]int
		if err := DecodeJSON(r, &in); err != nil {
			BadRequest(w, err.Error())
			return
		}
		WriteJSONOK(w, map[string]int{"doubled": in["n"] * 2})
	}))
	defer srv.Close()

	var out map[string]int
	err := DoJSON(context.Background(), NewStandardClient(srv.Client()), http.MethodPost, srv.URL, map[string]int{"n": 21}, &out)
	if err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if out["doubled"] != 42 {
		t.Errorf("doubled = %d", out["doubled"])
	}
}
