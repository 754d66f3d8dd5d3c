package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

// accessLog logs one line per request once the response is written.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authenticate runs the auth cache for /files requests and attaches the
// resulting identity to the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}

		id, err := s.auth.Authorize(r.Context(), vaultPath(r), r.Header.Get("Authorization"), r.Header.Get(headerAPIKey))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if id != nil {
			r = r.WithContext(models.WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// vaultPath is the request path below /files, decoded once by net/http.
func vaultPath(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/files")
}
