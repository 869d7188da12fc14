package middleware

import (
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/router"
)

var ipHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

// ClientIP records the caller's address on the request and its logger.
func ClientIP() router.Step {
	return func(r *router.Request) (*router.Response, error) {
		r.ClientIP = clientIP(r)
		if r.ClientIP != "" && r.Logger != nil {
			r.Logger = r.Logger.With(zap.String("client_ip", r.ClientIP))
		}
		return nil, nil
	}
}

func clientIP(r *router.Request) string {
	for _, h := range ipHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		first, _, _ := strings.Cut(v, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
