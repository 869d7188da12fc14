package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/apperr"
)

const requestIDHeader = "X-Request-ID"

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, PATCH, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, Authorization, hash",
}

// Dispatcher serves a route table over net/http.
type Dispatcher struct {
	table  *Table
	log    *zap.Logger
	global []Step
}

// NewDispatcher returns a dispatcher for table. global steps run before every
// route's own steps.
func NewDispatcher(table *Table, log *zap.Logger, global ...Step) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{table: table, log: log, global: global}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, hr *http.Request) {
	start := time.Now()
	for k, v := range corsHeaders {
		w.Header().Set(k, v)
	}

	if hr.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	requestID := strings.TrimSpace(hr.Header.Get(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)

	req := &Request{
		Request:   hr,
		RequestID: requestID,
		Logger:    d.log.With(zap.String("request_id", requestID)),
	}

	resp, err := d.serve(req)
	status := d.write(w, req, resp, err)

	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("method", hr.Method),
		zap.String("path", hr.URL.Path),
		zap.Duration("latency", time.Since(start)),
		zap.String("client_ip", req.ClientIP),
		zap.String("user_agent", hr.UserAgent()),
	}
	if req.Principal != nil {
		fields = append(fields, zap.String("user_id", req.Principal.UserID()))
	}
	switch {
	case status >= http.StatusInternalServerError:
		req.Logger.Error("http_request", fields...)
	case status >= http.StatusBadRequest:
		req.Logger.Warn("http_request", fields...)
	default:
		req.Logger.Info("http_request", fields...)
	}
}

func (d *Dispatcher) serve(req *Request) (resp *Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			req.Logger.Error("panic serving request", zap.Any("panic", rec), zap.Stack("stack"))
			resp, err = nil, fmt.Errorf("router: panic: %v", rec)
		}
	}()

	for _, step := range d.global {
		if resp, err := step(req); resp != nil || err != nil {
			return resp, err
		}
	}

	route, params, ok := d.table.Match(req.Method, req.URL.Path)
	if !ok {
		return nil, apperr.NotFound("Not Found")
	}
	req.Params = params

	for _, step := range route.Steps {
		if resp, err := step(req); resp != nil || err != nil {
			return resp, err
		}
	}
	return route.Handler(req)
}

// write encodes the outcome and returns the status sent.
func (d *Dispatcher) write(w http.ResponseWriter, req *Request, resp *Response, err error) int {
	if err != nil {
		status := apperr.Status(err)
		if status >= http.StatusInternalServerError {
			req.Logger.Error("request failed", zap.Error(err))
		}
		resp = Fail(status, apperr.Message(err))
	}
	if resp == nil {
		resp = &Response{Status: http.StatusOK}
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	if encErr := json.NewEncoder(w).Encode(resp.envelope()); encErr != nil {
		req.Logger.Warn("response encode failed", zap.Error(encErr))
	}
	return resp.Status
}
