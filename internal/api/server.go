// Package api serves the tracking endpoints and the signed-in progress API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hedgehog-learn/internal/auth"
	"hedgehog-learn/internal/completion"
	"hedgehog-learn/internal/hubspot"
	"hedgehog-learn/internal/store"
	"hedgehog-learn/internal/tracking"
)

// Version is reported by the health check.
const Version = "1.0.0"

// UserVerifier verifies access tokens for the protected routes.
type UserVerifier interface {
	Verify(ctx context.Context, token string) (auth.User, error)
}

// ContactFinder resolves a login email to a CRM contact.
type ContactFinder interface {
	FindContactByEmail(ctx context.Context, email string, props ...string) (*hubspot.Contact, error)
}

// Deps are the services behind the handlers. Nil services disable their routes
// with 503.
type Deps struct {
	Tracking *tracking.Service
	Quiz     *tracking.Grader
	Tokens   *auth.Tokens
	Users    UserVerifier
	Contacts ContactFinder
	Store    store.Store
	Metadata *completion.Metadata
	Origins  []string
	Log      *zap.Logger
}

type Server struct {
	Deps
	now func() time.Time
}

func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if len(d.Origins) == 0 {
		d.Origins = []string{"https://hedgehog.cloud"}
	}
	if d.Quiz == nil && d.Tracking != nil {
		d.Quiz = d.Tracking.Quiz
	}
	if d.Metadata == nil {
		d.Metadata = completion.NewMetadata(nil, nil)
	}
	return &Server{Deps: d, now: time.Now}
}

// Handler returns the routed handler with CORS, logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/events/track", s.postOnly(s.handleTrack))
	mux.HandleFunc("/quiz/grade", s.postOnly(s.handleGrade))
	mux.HandleFunc("GET /progress/read", s.handleProgressRead)
	mux.HandleFunc("GET /progress/aggregate", s.handleProgressAggregate)
	mux.HandleFunc("GET /enrollments/list", s.handleEnrollmentsList)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/me", s.handleMe)

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/enrollments", s.protected(s.handleListEnrollments))
	mux.HandleFunc("POST /api/enrollments", s.protected(s.handleCreateEnrollment))
	mux.HandleFunc("DELETE /api/enrollments/{courseSlug}", s.protected(s.handleDeleteEnrollment))
	mux.HandleFunc("GET /api/progress/{courseSlug}", s.protected(s.handleCourseProgress))
	mux.HandleFunc("POST /api/progress", s.protected(s.handleUpdateProgress))
	mux.HandleFunc("GET /api/badges", s.protected(s.handleListBadges))

	return chain(mux, s.recoverer, s.cors, s.logRequests)
}

func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}

// allowedOrigin echoes origin when listed, else the first configured origin.
func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.Origins {
		if o == origin {
			return origin
		}
	}
	return s.Origins[0]
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.allowedOrigin(r.Header.Get("Origin")))
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Log.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.Log.Error("handler panic", zap.Any("panic", v), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "Internal error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST only", nil)
			return
		}
		h(w, r)
	}
}

type userKey struct{}

// protected resolves the signed-in user from the access token cookie or
// bearer header.
func (s *Server) protected(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Store == nil || s.Users == nil {
			writeError(w, http.StatusServiceUnavailable, "Progress store not configured", nil)
			return
		}
		token := auth.TokenFromRequest(r)
		if token == "" {
			unauthorized(w, "Unauthorized: Missing or invalid access token")
			return
		}
		u, err := s.Users.Verify(r.Context(), token)
		if err != nil {
			s.Log.Warn("access token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			unauthorized(w, "Unauthorized: Missing or invalid access token")
			return
		}
		h(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	}
}

func userFrom(ctx context.Context) auth.User {
	u, _ := ctx.Value(userKey{}).(auth.User)
	return u
}
