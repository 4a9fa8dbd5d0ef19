// Package store persists enrollments, module progress and badges for
// signed-in users.
package store

import (
	"context"
	"errors"
)

var (
	ErrAlreadyEnrolled = errors.New("store: already enrolled")
	ErrNotFound        = errors.New("store: not found")
)

const StatusActive = "active"

type Enrollment struct {
	CourseSlug       string `json:"courseSlug"`
	PathwaySlug      string `json:"pathwaySlug,omitempty"`
	EnrolledAt       string `json:"enrolledAt"`
	EnrollmentSource string `json:"enrollmentSource,omitempty"`
	Status           string `json:"status"`
	CompletedAt      string `json:"completedAt,omitempty"`
}

type ModuleProgress struct {
	ModuleID    string `json:"moduleId,omitempty"`
	Started     bool   `json:"started"`
	StartedAt   string `json:"startedAt,omitempty"`
	Completed   bool   `json:"completed"`
	CompletedAt string `json:"completedAt,omitempty"`
}

type Badge struct {
	BadgeID  string         `json:"badgeId"`
	IssuedAt string         `json:"issuedAt"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ProgressEvent is "started" or "completed".
type ProgressEvent string

const (
	ProgressStarted   ProgressEvent = "started"
	ProgressCompleted ProgressEvent = "completed"
)

// Store is the per-user progress store behind the protected API.
type Store interface {
	ListEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
	GetEnrollment(ctx context.Context, userID, courseSlug string) (Enrollment, error)
	CreateEnrollment(ctx context.Context, userID string, e Enrollment) (Enrollment, error)
	DeleteEnrollment(ctx context.Context, userID, courseSlug string) error
	CompleteEnrollment(ctx context.Context, userID, courseSlug string) error
	CourseProgress(ctx context.Context, userID, courseSlug string) (map[string]ModuleProgress, error)
	UpdateProgress(ctx context.Context, userID, courseSlug, moduleID string, ev ProgressEvent) (ModuleProgress, error)
	ListBadges(ctx context.Context, userID string) ([]Badge, error)
	IssueBadge(ctx context.Context, userID string, b Badge) (Badge, error)
	HasBadge(ctx context.Context, userID, badgeType, key string) (bool, error)
}
