// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/picker/internal/arm"
	"github.com/banshee-data/picker/internal/serialmux"
	"github.com/banshee-data/picker/internal/simarm"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewJSONRequest creates a test HTTP request with v encoded as its body.
func NewJSONRequest(t testing.TB, method, path string, v any) *http.Request {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes r into v or fails the test.
func DecodeJSON(t testing.TB, r io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ConnectSimArm starts a simulated arm behind a serial mux and returns a
// client for it. Everything is shut down when the test ends.
func ConnectSimArm(t testing.TB, cfg simarm.Config) (*simarm.Arm, *arm.Client) {
	t.Helper()
	sim := simarm.New(cfg)
	mux := serialmux.NewSerialMux(sim)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mux.Monitor(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		mux.Close()
		<-done
	})
	return sim, arm.NewClient(mux)
}
