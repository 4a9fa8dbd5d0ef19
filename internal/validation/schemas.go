package validation

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// Event names accepted by the tracking endpoint.
const (
	EventModuleStarted    = "learning_module_started"
	EventModuleCompleted  = "learning_module_completed"
	EventPathwayEnrolled  = "learning_pathway_enrolled"
	EventPathwayCompleted = "learning_pathway_completed"
	EventCourseEnrolled   = "learning_course_enrolled"
	EventCourseCompleted  = "learning_course_completed"
	EventPageViewed       = "learning_page_viewed"
)

// EventNames lists every accepted event in a stable order.
var EventNames = []string{
	EventModuleStarted, EventModuleCompleted,
	EventPathwayEnrolled, EventPathwayCompleted,
	EventCourseEnrolled, EventCourseCompleted,
	EventPageViewed,
}

const missingEventFields = "Event payload missing required fields for this event type"

// ContactIdentifier names a CRM contact by email or id. At least one is required.
type ContactIdentifier struct {
	Email     string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	ContactID string `json:"contactId,omitempty" validate:"omitempty,max=50"`

	emailSet bool
}

func (c *ContactIdentifier) UnmarshalJSON(b []byte) error {
	type plain ContactIdentifier
	var raw struct {
		plain
		Email *string `json:"email"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = ContactIdentifier(raw.plain)
	if raw.Email != nil {
		c.Email, c.emailSet = *raw.Email, true
	}
	return nil
}

func (c *ContactIdentifier) Empty() bool {
	return c == nil || (c.Email == "" && c.ContactID == "")
}

// TrackEvent is the body of POST /events/track.
type TrackEvent struct {
	EventName         string             `json:"eventName" validate:"required,oneof=learning_module_started learning_module_completed learning_pathway_enrolled learning_pathway_completed learning_course_enrolled learning_course_completed learning_page_viewed"`
	ContactIdentifier *ContactIdentifier `json:"contactIdentifier,omitempty"`
	Payload           map[string]any     `json:"payload,omitempty" validate:"omitempty,max=50"`
	EnrollmentSource  string             `json:"enrollment_source,omitempty" validate:"omitempty,max=1000"`
	PathwaySlug       string             `json:"pathway_slug,omitempty" validate:"omitempty,max=200"`
	CourseSlug        string             `json:"course_slug,omitempty" validate:"omitempty,max=200"`
}

func (e *TrackEvent) refine() []string {
	var out []string
	if c := e.ContactIdentifier; c != nil {
		// a present but empty email is invalid
		if c.emailSet && c.Email == "" {
			out = append(out, "contactIdentifier.email: Invalid email")
		}
		if c.Empty() {
			out = append(out, "contactIdentifier: At least one of email or contactId must be provided")
		}
	}
	out = append(out, payloadRules(e.Payload)...)
	if !e.hasRequiredFields() {
		out = append(out, "root: "+missingEventFields)
	}
	return out
}

func (e *TrackEvent) hasRequiredFields() bool {
	switch e.EventName {
	case EventModuleStarted, EventModuleCompleted:
		return truthy(e.Payload["module_slug"]) || e.PathwaySlug != "" || e.CourseSlug != ""
	case EventPathwayEnrolled, EventPathwayCompleted:
		return e.PathwaySlug != "" || truthy(e.Payload["pathway_slug"])
	case EventCourseEnrolled, EventCourseCompleted:
		return e.CourseSlug != "" || truthy(e.Payload["course_slug"])
	case EventPageViewed:
		return truthy(e.Payload["content_type"]) && truthy(e.Payload["slug"])
	}
	// unknown names are reported by the oneof rule
	return true
}

// PayloadString returns payload[key] when it is a string.
func (e *TrackEvent) PayloadString(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// ModuleSlug is payload.module_slug.
func (e *TrackEvent) ModuleSlug() string { return e.PayloadString("module_slug") }

// Pathway resolves the pathway slug from the top level or the payload.
func (e *TrackEvent) Pathway() string {
	if e.PathwaySlug != "" {
		return e.PathwaySlug
	}
	return e.PayloadString("pathway_slug")
}

// Course resolves the course slug from the top level or the payload.
func (e *TrackEvent) Course() string {
	if e.CourseSlug != "" {
		return e.CourseSlug
	}
	return e.PayloadString("course_slug")
}

// OccurredAt is payload.ts when it parses, otherwise now.
func (e *TrackEvent) OccurredAt(now time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, e.PayloadString("ts")); err == nil {
		return t
	}
	return now
}

var slugKeys = []string{"module_slug", "pathway_slug", "course_slug", "slug"}

// payloadRules checks the well-known payload keys when present.
func payloadRules(p map[string]any) []string {
	var out []string
	for _, k := range slugKeys {
		v, ok := p[k]
		if !ok || v == nil {
			continue
		}
		s, isStr := v.(string)
		switch {
		case !isStr:
			out = append(out, fmt.Sprintf("payload.%s: Expected string", k))
		case len(s) > MaxSlugLength:
			out = append(out, fmt.Sprintf("payload.%s: String must contain at most %d character(s)", k, MaxSlugLength))
		}
	}
	if v, ok := p["ts"]; ok && v != nil {
		s, _ := v.(string)
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			out = append(out, "payload.ts: Invalid datetime")
		}
	}
	var long []string
	for k, v := range p {
		if slices.Contains(slugKeys, k) {
			continue
		}
		if s, ok := v.(string); ok && len(s) > MaxStringLength {
			long = append(long, fmt.Sprintf("payload.%s: String must contain at most %d character(s)", k, MaxStringLength))
		}
	}
	sort.Strings(long)
	return append(out, long...)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	}
	return true
}

// ProgressReadQuery is the query of GET /progress/read.
type ProgressReadQuery struct {
	Email     string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	ContactID string `json:"contactId,omitempty" validate:"omitempty,max=50"`
}

// ProgressAggregateQuery is the query of GET /progress/aggregate.
type ProgressAggregateQuery struct {
	Email     string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	ContactID string `json:"contactId,omitempty" validate:"omitempty,max=50"`
	Type      string `json:"type" validate:"required,oneof=pathway course"`
	Slug      string `json:"slug" validate:"required,min=1,max=200"`
}

// EnrollmentsListQuery is the query of GET /enrollments/list.
type EnrollmentsListQuery struct {
	Email     string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	ContactID string `json:"contactId,omitempty" validate:"omitempty,max=50"`
}

func (q *EnrollmentsListQuery) refine() []string {
	if q.Email == "" && q.ContactID == "" {
		return []string{"root: Either email or contactId is required"}
	}
	return nil
}

// QuizAnswer is one submitted answer; Value is free-form.
type QuizAnswer struct {
	ID    string `json:"id" validate:"required,min=1,max=1000"`
	Value any    `json:"value"`
}

// QuizGrade is the body of POST /quiz/grade.
type QuizGrade struct {
	ModuleSlug string       `json:"module_slug" validate:"required,min=1,max=200"`
	Answers    []QuizAnswer `json:"answers" validate:"required,max=100,dive"`
}

// EnrollmentCreate is the body of POST /enrollments.
type EnrollmentCreate struct {
	CourseSlug       string `json:"courseSlug" validate:"required,min=1,max=200"`
	PathwaySlug      string `json:"pathwaySlug,omitempty" validate:"omitempty,max=200"`
	EnrollmentSource string `json:"enrollmentSource,omitempty" validate:"omitempty,max=1000"`
}

// ProgressUpdate is the body of POST /progress.
type ProgressUpdate struct {
	CourseSlug string `json:"courseSlug" validate:"required,min=1,max=200"`
	ModuleID   string `json:"moduleId" validate:"required,min=1,max=200"`
	EventType  string `json:"eventType" validate:"required,oneof=started completed"`
}

// Login is the body of POST /auth/login.
type Login struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// CourseSlugParam is a course slug taken from a URL path.
type CourseSlugParam struct {
	CourseSlug string `json:"courseSlug" validate:"required,min=1,max=200"`
}

// QueryValues adapts url.Values-like lookups into the query schemas.
func QueryValues(get func(string) string, dst any) {
	switch q := dst.(type) {
	case *ProgressReadQuery:
		q.Email, q.ContactID = get("email"), get("contactId")
	case *EnrollmentsListQuery:
		q.Email, q.ContactID = get("email"), get("contactId")
	case *ProgressAggregateQuery:
		q.Email, q.ContactID = get("email"), get("contactId")
		q.Type, q.Slug = strings.TrimSpace(get("type")), get("slug")
	}
}
