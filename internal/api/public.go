package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"hedgehog-learn/internal/auth"
	"hedgehog-learn/internal/hubspot"
	"hedgehog-learn/internal/progress"
	"hedgehog-learn/internal/tracking"
	"hedgehog-learn/internal/validation"
)

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if s.Tracking == nil {
		writeError(w, http.StatusServiceUnavailable, "Tracking not configured", nil)
		return
	}
	var ev validation.TrackEvent
	if !decode(w, r, &ev, "event payload") {
		return
	}
	// a signed contact token stands in for a missing identifier
	if ev.ContactIdentifier.Empty() && s.Tokens != nil {
		if c, ok := s.Tokens.ContactFromHeader(r.Header.Get("Authorization")); ok {
			ev.ContactIdentifier = &validation.ContactIdentifier{Email: c.Email, ContactID: c.ContactID}
		}
	}
	writeJSON(w, http.StatusOK, s.Tracking.Track(r.Context(), &ev))
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var q validation.QuizGrade
	if !decode(w, r, &q, "quiz submission") {
		return
	}
	res := s.Quiz.Grade(r.Context(), &q)
	s.Log.Info("graded module", zap.String("module", q.ModuleSlug), zap.Int("score", res.Score), zap.Bool("pass", res.Pass))
	writeJSON(w, http.StatusOK, res)
}

// readError maps tracking read failures to responses.
func (s *Server) readError(w http.ResponseWriter, err error) {
	if errors.Is(err, tracking.ErrContactNotFound) {
		writeError(w, http.StatusNotFound, "Contact not found", nil)
		return
	}
	s.Log.Error("progress read failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal error", nil)
}

func (s *Server) handleProgressRead(w http.ResponseWriter, r *http.Request) {
	var q validation.ProgressReadQuery
	if !query(w, r, &q, "query parameters") {
		return
	}
	if s.Tracking == nil {
		writeJSON(w, http.StatusOK, tracking.ReadResult{Mode: tracking.ModeAnonymous, Progress: progress.New()})
		return
	}
	res, err := s.Tracking.Read(r.Context(), q)
	if err != nil {
		s.readError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProgressAggregate(w http.ResponseWriter, r *http.Request) {
	var q validation.ProgressAggregateQuery
	if !query(w, r, &q, "query parameters") {
		return
	}
	if s.Tracking == nil {
		writeJSON(w, http.StatusOK, tracking.AggregateResult{Mode: tracking.ModeAnonymous, Type: q.Type, Slug: q.Slug})
		return
	}
	res, err := s.Tracking.Aggregate(r.Context(), q)
	if err != nil {
		s.readError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEnrollmentsList(w http.ResponseWriter, r *http.Request) {
	var q validation.EnrollmentsListQuery
	if !query(w, r, &q, "query parameters") {
		return
	}
	if s.Tracking == nil {
		writeError(w, http.StatusServiceUnavailable, "Tracking not configured", nil)
		return
	}
	res, err := s.Tracking.Enrollments(r.Context(), q)
	if err != nil {
		s.readError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type loginResponse struct {
	Token     string `json:"token"`
	ContactID string `json:"contactId"`
	Email     string `json:"email"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
}

// handleLogin issues a contact token for a known CRM email.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req validation.Login
	if !decode(w, r, &req, "login request") {
		return
	}
	if s.Contacts == nil || s.Tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "Login not configured", nil)
		return
	}
	c, err := s.Contacts.FindContactByEmail(r.Context(), req.Email, "email", "firstname", "lastname")
	if errors.Is(err, hubspot.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Contact not found", nil)
		return
	}
	if err != nil {
		s.Log.Error("login contact lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
		return
	}
	token, err := s.Tokens.Issue(auth.Contact{ContactID: c.ID, Email: req.Email})
	if err != nil {
		s.Log.Error("token issue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ContactID: c.ID,
		Email:     req.Email,
		FirstName: c.Properties["firstname"],
		LastName:  c.Properties["lastname"],
	})
}

// handleMe returns the identity behind the access token cookie, or behind a
// contact bearer token when no user pool is configured.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, private")
	if s.Users != nil {
		token := auth.TokenFromRequest(r)
		if token == "" {
			unauthorized(w, "Unauthorized: Invalid or expired token")
			return
		}
		u, err := s.Users.Verify(r.Context(), token)
		if err != nil {
			s.Log.Warn("me: token rejected", zap.Error(err))
			unauthorized(w, "Unauthorized: Invalid or expired token")
			return
		}
		writeJSON(w, http.StatusOK, u)
		return
	}
	if s.Tokens != nil {
		if c, ok := s.Tokens.ContactFromHeader(r.Header.Get("Authorization")); ok {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	unauthorized(w, "Unauthorized: Invalid or expired token")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": progress.Timestamp(s.now()),
		"version":   Version,
	})
}
