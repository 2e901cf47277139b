// middleware/recovery.go
package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"admissions/utils"
)

// RecoveryMiddleware turns a downstream panic into a 500 instead of killing
// the connection, logging the value and stack for the operator.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				log.Printf("panic on %s %s: %v\n%s", r.Method, r.URL.Path, v, debug.Stack())
				utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
