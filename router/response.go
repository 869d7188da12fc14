package router

import "net/http"

// Body is a JSON object merged into the response envelope.
type Body map[string]any

// Response is what a step or handler answers with.
type Response struct {
	Status int
	Body   Body
	Header http.Header
}

// OK answers 200 with body merged into {"status": true}.
func OK(body Body) *Response {
	return &Response{Status: http.StatusOK, Body: body}
}

// Data answers 200 with {"status": true, "data": v}.
func Data(v any) *Response {
	return OK(Body{"data": v})
}

// Message answers 200 with {"status": true, "message": msg}.
func Message(msg string) *Response {
	return OK(Body{"message": msg})
}

// Fail answers status with {"status": false, "message": msg}. Steps normally
// return apperr errors instead.
func Fail(status int, msg string) *Response {
	return &Response{Status: status, Body: Body{"status": false, "message": msg}}
}

// envelope returns the body to encode.
func (r *Response) envelope() Body {
	out := make(Body, len(r.Body)+1)
	for k, v := range r.Body {
		out[k] = v
	}
	if _, set := out["status"]; !set {
		out["status"] = r.Status < http.StatusBadRequest
	}
	return out
}
