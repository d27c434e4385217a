// internal/requestinfo/middleware.go
//
// Enrich attaches Info to every request.  It sits after chi's RealIP so
// RemoteAddr already holds the forwarded client address when the service
// runs behind a proxy; the header fallbacks cover direct use without it.
package requestinfo

import (
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// Enrich returns middleware that stores Info in the request context.
func Enrich(geo *geoip2.Reader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := Describe(r.UserAgent(), clientIP(r), geo)
			zap.L().Debug("request info",
				zap.String("ip", info.IP),
				zap.String("country", info.Country),
				zap.String("agent", info.Agent()),
				zap.Bool("bot", info.Bot),
			)
			next.ServeHTTP(w, r.WithContext(WithInfo(r.Context(), info)))
		})
	}
}

// clientIP prefers the left-most X-Forwarded-For entry, then X-Real-Ip,
// then RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}
