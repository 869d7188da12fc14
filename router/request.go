package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/apperr"
	"github.com/MrEthical07/authcore/session"
)

const maxBodyBytes = 1 << 20

// Request is the typed context handed through a pipeline. A non-zero field
// means the step that sets it already ran.
type Request struct {
	*http.Request

	Params    Params
	RequestID string
	Logger    *zap.Logger

	// Set by the client IP step.
	ClientIP string

	// Set by the authentication step.
	Principal   *session.Principal
	AccessToken string
}

// Step is one stage of a pipeline. Returning a response or an error ends the
// request; returning (nil, nil) continues.
type Step func(r *Request) (*Response, error)

// Handler answers a request that passed every step.
type Handler func(r *Request) (*Response, error)

var errInvalidBody = apperr.Validation("Invalid request body")

// Decode reads a JSON body into dst. An empty body leaves dst untouched.
func (r *Request) Decode(dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(errInvalidBody.Kind, errInvalidBody.Message, err)
	}
	return nil
}

// Query returns the trimmed query parameter name.
func (r *Request) Query(name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

// Param returns the named path parameter.
func (r *Request) Param(name string) string { return r.Params.Get(name) }

// BearerToken returns the token from "Authorization: Bearer <token>".
func (r *Request) BearerToken() (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
