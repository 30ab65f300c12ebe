package server

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

var (
	errForeignOrigin = errors.New("origin not allowed")
	errNotJSON       = errors.New("content type must be application/json")
)

// requestLogger logs HTTP requests using zerolog
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// recoverer recovers from panics and logs with zerolog
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.log.Error().
					Interface("panic", rvr).
					Str("path", r.URL.Path).
					Msg("Recovered from panic")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// originListed reports whether a cross-origin browser caller is configured.
func originListed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// originAllowed accepts requests without an Origin header (curl, scripts),
// same-origin requests, and listed origins.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return originListed(s.opts.AllowedOrigins, origin)
}

// guardOrigin rejects state-changing requests from foreign origins. CORS only
// hides the response from them; the handler would still run.
func (s *Server) guardOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.originAllowed(r) {
			s.log.Warn().Str("origin", r.Header.Get("Origin")).Str("path", r.URL.Path).Msg("rejected cross-origin request")
			writeError(w, http.StatusForbidden, errForeignOrigin)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireJSON forces browsers to preflight action requests.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, errNotJSON)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newCORSHandler(allowedOrigins []string, next http.Handler) http.Handler {
	// Credentials may not be combined with a wildcard origin.
	allowCredentials := len(allowedOrigins) > 0
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCredentials = false
		}
	}

	return cors.New(cors.Options{
		AllowOriginFunc:  func(origin string) bool { return originListed(allowedOrigins, origin) },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: allowCredentials,
	}).Handler(next)
}
