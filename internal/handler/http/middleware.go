package http

import (
	"net/http"
	"strings"

	"github.com/Muhadev/celm-backend/pkg/httputil"
)

// SessionTokenHeader carries the registration session token.
const SessionTokenHeader = "X-Session-Token"

// ContentTypeJSON rejects requests with a body that is not declared as JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPut {
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func sessionToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(SessionTokenHeader))
}
