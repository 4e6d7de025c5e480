package middleware

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// frames arrive many times per second, keep them out of debug logs
			if r.URL.Path == "/api/tracking/frames" {
				log.Tracef(" ====> request [%s] path: [%s]", r.Method, r.URL.Path)
			} else {
				log.Debugf(" ====> request [%s] path: [%s] [UA: %s]", r.Method, r.URL.Path, r.Header.Get("User-Agent"))
			}
			next.ServeHTTP(w, r)
		})
	}
}
