package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"hedgehog-learn/internal/store"
	"hedgehog-learn/internal/validation"
)

const courseBadge = "course"

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	s.Log.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error", nil)
}

func (s *Server) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	list, err := s.Store.ListEnrollments(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.storeError(w, "list enrollments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enrollments": list})
}

func (s *Server) handleCreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req validation.EnrollmentCreate
	if !decode(w, r, &req, "enrollment data") {
		return
	}
	user := userFrom(r.Context())
	e, err := s.Store.CreateEnrollment(r.Context(), user.ID, store.Enrollment{
		CourseSlug:       req.CourseSlug,
		PathwaySlug:      req.PathwaySlug,
		EnrollmentSource: req.EnrollmentSource,
	})
	if errors.Is(err, store.ErrAlreadyEnrolled) {
		writeCode(w, http.StatusConflict, "Already enrolled in this course", "ALREADY_ENROLLED")
		return
	}
	if err != nil {
		s.storeError(w, "create enrollment", err)
		return
	}
	s.Log.Info("created enrollment", zap.String("user", user.ID), zap.String("course", req.CourseSlug))
	writeJSON(w, http.StatusCreated, map[string]any{"enrollment": e})
}

// courseSlug validates the {courseSlug} path segment.
func courseSlug(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := validation.CourseSlugParam{CourseSlug: r.PathValue("courseSlug")}
	if p.CourseSlug == "" {
		writeError(w, http.StatusBadRequest, "Missing courseSlug path parameter", nil)
		return "", false
	}
	if verr := validation.Validate(&p, "courseSlug parameter"); verr != nil {
		writeError(w, http.StatusBadRequest, verr.Message, verr)
		return "", false
	}
	return p.CourseSlug, true
}

func (s *Server) handleDeleteEnrollment(w http.ResponseWriter, r *http.Request) {
	slug, ok := courseSlug(w, r)
	if !ok {
		return
	}
	err := s.Store.DeleteEnrollment(r.Context(), userFrom(r.Context()).ID, slug)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Enrollment not found", nil)
		return
	}
	if err != nil {
		s.storeError(w, "delete enrollment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCourseProgress(w http.ResponseWriter, r *http.Request) {
	slug, ok := courseSlug(w, r)
	if !ok {
		return
	}
	mods, err := s.Store.CourseProgress(r.Context(), userFrom(r.Context()).ID, slug)
	if err != nil {
		s.storeError(w, "course progress", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courseSlug": slug, "modules": mods})
}

func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req validation.ProgressUpdate
	if !decode(w, r, &req, "progress update data") {
		return
	}
	user := userFrom(r.Context())
	mp, err := s.Store.UpdateProgress(r.Context(), user.ID, req.CourseSlug, req.ModuleID, store.ProgressEvent(req.EventType))
	if err != nil {
		s.storeError(w, "update progress", err)
		return
	}
	if mp.Completed {
		if err := s.awardCourse(r, user.ID, req.CourseSlug); err != nil {
			// progress is saved; the badge is retried on the next completion
			s.Log.Error("course badge failed", zap.String("course", req.CourseSlug), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "progress": mp})
}

// awardCourse issues the course badge and completes the enrollment once every
// module the course requires is completed.
func (s *Server) awardCourse(r *http.Request, userID, course string) error {
	ctx := r.Context()
	required, ok := s.Metadata.CourseModules(course)
	if !ok || len(required) == 0 {
		return nil
	}
	has, err := s.Store.HasBadge(ctx, userID, courseBadge, course)
	if err != nil || has {
		return err
	}
	mods, err := s.Store.CourseProgress(ctx, userID, course)
	if err != nil {
		return err
	}
	for _, m := range required {
		if !mods[m].Completed {
			return nil
		}
	}
	if _, err := s.Store.IssueBadge(ctx, userID, store.Badge{
		Type:     courseBadge,
		Metadata: map[string]any{store.BadgeKey: course, "modules": len(required)},
	}); err != nil {
		return err
	}
	s.Log.Info("issued course badge", zap.String("user", userID), zap.String("course", course))
	return s.Store.CompleteEnrollment(ctx, userID, course)
}

func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := s.Store.ListBadges(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.storeError(w, "list badges", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": badges})
}
