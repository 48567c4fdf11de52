package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/picker/internal/arm"
	"github.com/banshee-data/picker/internal/db"
	"github.com/banshee-data/picker/internal/httputil"
	"github.com/banshee-data/picker/internal/monitoring"
	"github.com/banshee-data/picker/internal/planner"
	"github.com/banshee-data/picker/internal/serialmux"
	"github.com/banshee-data/picker/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultOrderTimeout bounds a single order when Options leaves it unset.
const DefaultOrderTimeout = 5 * time.Minute

// OrderFulfiller runs orders on the arm. *planner.Fulfiller satisfies it.
type OrderFulfiller interface {
	FulfillOrder(ctx context.Context, order planner.Order) (planner.Result, error)
}

// Positioner reports where the arm is. *arm.Client satisfies it.
type Positioner interface {
	Position(ctx context.Context) (planner.Position, error)
}

// Journal stores order results. *db.DB satisfies it.
type Journal interface {
	RecordFulfilment(ctx context.Context, res planner.Result) (string, error)
	RecentFulfilments(ctx context.Context, limit int) ([]db.Fulfilment, error)
	ListSlots(ctx context.Context) ([]db.SlotRecord, error)
}

type Options struct {
	Fulfiller    OrderFulfiller
	Arm          Positioner
	Journal      Journal
	OrderTimeout time.Duration
	// NewID names orders submitted without an id.
	NewID func() string
}

type Server struct {
	fulfiller    OrderFulfiller
	arm          Positioner
	journal      Journal
	orderTimeout time.Duration
	newID        func() string
}

func NewServer(opts Options) *Server {
	s := &Server{
		fulfiller:    opts.Fulfiller,
		arm:          opts.Arm,
		journal:      opts.Journal,
		orderTimeout: opts.OrderTimeout,
		newID:        opts.NewID,
	}
	if s.orderTimeout <= 0 {
		s.orderTimeout = DefaultOrderTimeout
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders", s.submitOrder)
	mux.HandleFunc("/position", s.showPosition)
	mux.HandleFunc("/fulfilments", s.listFulfilments)
	mux.HandleFunc("/slots", s.listSlots)
	mux.HandleFunc("/version", s.showVersion)
	return mux
}

// OrderRequest is the body of POST /orders.
type OrderRequest struct {
	ID    string         `json:"id,omitempty"`
	Items []planner.Item `json:"items"`
}

// OrderResponse is returned for an order that ran to the bagging slot.
type OrderResponse struct {
	FulfilmentID string `json:"fulfilment_id,omitempty"`
	Complete     bool   `json:"complete"`
	planner.Result
}

// OrderError is returned when an order was aborted. Result holds whatever
// was picked before the fault.
type OrderError struct {
	Error  string         `json:"error"`
	Result planner.Result `json:"result"`
}

func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req OrderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	order := planner.Order{ID: strings.TrimSpace(req.ID), Items: req.Items}
	if order.ID == "" {
		order.ID = s.newID()
	}
	if err := order.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	// the arm is not abandoned mid-order because the caller hung up
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.orderTimeout)
	defer cancel()

	res, err := s.fulfiller.FulfillOrder(ctx, order)
	if err != nil {
		monitoring.Logf("order %s aborted after %d picks: %v", order.ID, len(res.Picks), err)
		httputil.WriteJSON(w, faultStatus(err), OrderError{
			Error:  fmt.Sprintf("order %s aborted: %v", order.ID, err),
			Result: res,
		})
		return
	}

	resp := OrderResponse{Complete: res.Complete(), Result: res}
	if s.journal != nil {
		id, err := s.journal.RecordFulfilment(ctx, res)
		if err != nil {
			// the bag is already placed; losing the journal entry is not fatal
			monitoring.Logf("order %s: failed to journal fulfilment: %v", order.ID, err)
		}
		resp.FulfilmentID = id
	}
	httputil.WriteJSONOK(w, resp)
}

// faultStatus maps an order fault to an HTTP status.
func faultStatus(err error) int {
	var devErr *arm.DeviceError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &devErr), errors.Is(err, serialmux.ErrClosed), errors.Is(err, arm.ErrMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) showPosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	pos, err := s.arm.Position(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, faultStatus(err), fmt.Sprintf("failed to read arm position: %v", err))
		return
	}
	httputil.WriteJSONOK(w, pos)
}

func (s *Server) listFulfilments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := db.DefaultRecentLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 1000 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	recent, err := s.journal.RecentFulfilments(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve fulfilments: %v", err))
		return
	}
	if recent == nil {
		recent = []db.Fulfilment{}
	}
	httputil.WriteJSONOK(w, recent)
}

func (s *Server) listSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	slots, err := s.journal.ListSlots(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list slots: %v", err))
		return
	}
	if slots == nil {
		slots = []db.SlotRecord{}
	}
	httputil.WriteJSONOK(w, slots)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}
