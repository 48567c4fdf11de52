package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/banshee-data/picker/internal/db"
	"github.com/banshee-data/picker/internal/httputil"
	"github.com/banshee-data/picker/internal/planner"
	"github.com/banshee-data/picker/internal/version"
)

// Client calls a running picker server.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient returns a client for the server at baseURL. A nil hc uses
// http.DefaultClient.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// SubmitOrder posts an order and waits for it to finish. An aborted order
// comes back as *httputil.StatusError whose Body holds an OrderError.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	var resp OrderResponse
	err := httputil.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/orders", req, &resp)
	return resp, err
}

func (c *Client) Position(ctx context.Context) (planner.Position, error) {
	var pos planner.Position
	err := httputil.DoJSON(ctx, c.http, http.MethodGet, c.baseURL+"/position", nil, &pos)
	return pos, err
}

// RecentFulfilments lists journal entries, newest first. limit <= 0 uses the
// server default.
func (c *Client) RecentFulfilments(ctx context.Context, limit int) ([]db.Fulfilment, error) {
	url := c.baseURL + "/fulfilments"
	if limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, limit)
	}
	var out []db.Fulfilment
	err := httputil.DoJSON(ctx, c.http, http.MethodGet, url, nil, &out)
	return out, err
}

func (c *Client) Slots(ctx context.Context) ([]db.SlotRecord, error) {
	var out []db.SlotRecord
	err := httputil.DoJSON(ctx, c.http, http.MethodGet, c.baseURL+"/slots", nil, &out)
	return out, err
}

func (c *Client) Version(ctx context.Context) (version.Info, error) {
	var info version.Info
	err := httputil.DoJSON(ctx, c.http, http.MethodGet, c.baseURL+"/version", nil, &info)
	return info, err
}
