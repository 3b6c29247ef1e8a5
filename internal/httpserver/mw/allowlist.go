package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/linkpocket/internal/logger"
)

// AllowOnlyCIDRS rejects callers outside the allow-list with 403. An empty
// list lets everything through.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	set := parsePrefixes(allowed)
	if len(set) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debug("cidr allow-list enabled",
		logger.Int("rules", len(set)),
		logger.Bool("trust_proxy", trustProxy))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !set.contains(ip) {
				log.Debug("request rejected by allow-list",
					logger.String("ip", ip),
					logger.String("path", r.URL.Path))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
