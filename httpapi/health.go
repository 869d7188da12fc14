package httpapi

import (
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/router"
)

func root(*router.Request) (*router.Response, error) {
	return &router.Response{Status: http.StatusOK}, nil
}

// liveness answers as long as the process serves requests.
func liveness(*router.Request) (*router.Response, error) {
	return router.Data(1), nil
}

// healthCheck reports dependency reachability and answers 503 when any
// dependency is down.
func healthCheck(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		status := e.Health(r.Context())
		resp := router.Data(status)
		if !status.OK() {
			resp.Status = http.StatusServiceUnavailable
		}
		return resp, nil
	}
}
