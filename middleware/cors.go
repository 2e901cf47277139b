// middleware/cors.go
package middleware

import (
	"net/http"

	"admissions/config"
)

// CorsMiddleware reflects origins listed in config.AllowedOrigins (or any
// origin when the list is empty) and short-circuits preflight requests.
// Websocket upgrades pass through untouched; the hub authenticates them by
// token on connect.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		if origin := r.Header.Get("Origin"); origin != "" && originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin")
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string) bool {
	if len(config.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range config.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}
