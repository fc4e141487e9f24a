package request

import (
	"net/http"

	"gatekeeper/pkg/platform/httputil"
)

// BodyLimit rejects declared oversize bodies up front and caps the rest
// while they are read.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
					Error:            httputil.ErrBodyTooLarge,
					ErrorDescription: "request body exceeds the size limit",
				})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
