// Package tracking records learning events against the CRM and serves the
// progress read endpoints.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"hedgehog-learn/internal/completion"
	"hedgehog-learn/internal/hubspot"
	"hedgehog-learn/internal/progress"
	"hedgehog-learn/internal/validation"
)

// CRM is the subset of the HubSpot client tracking needs.
type CRM interface {
	SendBehavioralEvent(ctx context.Context, ev hubspot.BehavioralEvent) error
	GetContact(ctx context.Context, id string, props ...string) (*hubspot.Contact, error)
	FindContactByEmail(ctx context.Context, email string, props ...string) (*hubspot.Contact, error)
	UpdateContactProperties(ctx context.Context, id string, props map[string]string) error
}

const (
	StatusLogged    = "logged"
	StatusPersisted = "persisted"

	ModeAnonymous     = "anonymous"
	ModeAuthenticated = "authenticated"
	ModeFallback      = "fallback"
)

// ErrContactNotFound is returned by the read operations for unknown contacts.
var ErrContactNotFound = errors.New("contact not found")

type TrackResult struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
	Error  string `json:"error,omitempty"`
}

type Service struct {
	CRM      CRM
	Metadata *completion.Metadata
	// Enabled turns on CRM persistence.
	Enabled  bool
	Property string
	Quiz     *Grader
	Log      *zap.Logger

	now func() time.Time
}

func NewService(crm CRM, meta *completion.Metadata, enabled bool, property string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if meta == nil {
		meta = completion.NewMetadata(nil, nil)
	}
	if property == "" {
		property = "hhl_progress_state"
	}
	return &Service{
		CRM:      crm,
		Metadata: meta,
		Enabled:  enabled,
		Property: property,
		Quiz:     NewGrader(nil, 70, log),
		Log:      log,
		now:      time.Now,
	}
}

// Track sends ev to the CRM and folds it into the contact's progress state.
// CRM failures never fail the request; they degrade to the fallback mode.
func (s *Service) Track(ctx context.Context, ev *validation.TrackEvent) TrackResult {
	if !s.Enabled {
		s.Log.Info("track event (anonymous)", zap.String("event", ev.EventName))
		return TrackResult{Status: StatusLogged, Mode: ModeAnonymous}
	}
	if ev.ContactIdentifier.Empty() {
		s.Log.Info("track event (no identity)", zap.String("event", ev.EventName))
		return TrackResult{Status: StatusLogged, Mode: ModeAnonymous}
	}

	id := ev.ContactIdentifier
	be := hubspot.BehavioralEvent{
		EventName:  ev.EventName,
		OccurredAt: s.now().UTC(),
		Properties: ev.Payload,
	}
	if id.Email != "" {
		be.Email = id.Email
	} else {
		be.ObjectID = id.ContactID
	}
	if err := s.CRM.SendBehavioralEvent(ctx, be); err != nil {
		s.Log.Error("failed to persist event to CRM", zap.String("event", ev.EventName), zap.Error(err))
		return TrackResult{Status: StatusLogged, Mode: ModeFallback, Error: err.Error()}
	}

	if err := s.persist(ctx, ev); err != nil {
		s.Log.Error("failed to update progress state", zap.String("event", ev.EventName), zap.Error(err))
		return TrackResult{Status: StatusLogged, Mode: ModeFallback, Error: err.Error()}
	}
	s.Log.Info("track event (persisted)", zap.String("event", ev.EventName))
	return TrackResult{Status: StatusPersisted, Mode: ModeAuthenticated}
}

func (s *Service) persist(ctx context.Context, ev *validation.TrackEvent) error {
	contact, err := s.contact(ctx, ev.ContactIdentifier.Email, ev.ContactIdentifier.ContactID)
	if err != nil {
		return err
	}
	state, err := progress.Decode(contact.Properties[s.Property])
	if err != nil {
		return fmt.Errorf("decode %s: %w", s.Property, err)
	}

	pe := progress.EventFrom(ev, s.now())
	if err := s.checkExplicit(pe, state); err != nil {
		// the event itself was delivered; only the state update is refused
		s.Log.Warn("explicit completion rejected", zap.String("event", ev.EventName), zap.Error(err))
		return nil
	}
	changed, err := progress.ApplyEvent(state, pe)
	if err != nil || !changed {
		return err
	}
	for _, ch := range s.Metadata.Recompute(state) {
		s.Log.Debug("completion changed", zap.String("type", string(ch.Type)), zap.String("slug", ch.Slug), zap.Bool("completed", ch.After))
	}

	raw, err := state.Encode()
	if err != nil {
		return err
	}
	return s.CRM.UpdateContactProperties(ctx, contact.ID, map[string]string{s.Property: raw})
}

func (s *Service) checkExplicit(ev progress.Event, state *progress.State) error {
	switch ev.Name {
	case validation.EventCourseCompleted:
		return s.Metadata.ValidateExplicitCompletion(completion.KindCourse, ev.CourseSlug, ev.PathwaySlug, state)
	case validation.EventPathwayCompleted:
		return s.Metadata.ValidateExplicitCompletion(completion.KindPathway, ev.PathwaySlug, "", state)
	}
	return nil
}

func (s *Service) contact(ctx context.Context, email, contactID string) (*hubspot.Contact, error) {
	var (
		c   *hubspot.Contact
		err error
	)
	if contactID != "" {
		c, err = s.CRM.GetContact(ctx, contactID, s.Property, "email")
	} else {
		c, err = s.CRM.FindContactByEmail(ctx, email, s.Property, "email")
	}
	if errors.Is(err, hubspot.ErrNotFound) {
		return nil, ErrContactNotFound
	}
	return c, err
}

func (s *Service) state(ctx context.Context, email, contactID string) (*hubspot.Contact, *progress.State, error) {
	c, err := s.contact(ctx, email, contactID)
	if err != nil {
		return nil, nil, err
	}
	st, err := progress.Decode(c.Properties[s.Property])
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", s.Property, err)
	}
	return c, st, nil
}

func (s *Service) anonymous(email, contactID string) bool {
	return !s.Enabled || (email == "" && contactID == "")
}

type ReadResult struct {
	Mode      string          `json:"mode"`
	ContactID string          `json:"contactId,omitempty"`
	Progress  *progress.State `json:"progress"`
}

// Read returns the stored progress state.
func (s *Service) Read(ctx context.Context, q validation.ProgressReadQuery) (ReadResult, error) {
	if s.anonymous(q.Email, q.ContactID) {
		return ReadResult{Mode: ModeAnonymous, Progress: progress.New()}, nil
	}
	c, st, err := s.state(ctx, q.Email, q.ContactID)
	if err != nil {
		return ReadResult{}, err
	}
	return ReadResult{Mode: ModeAuthenticated, ContactID: c.ID, Progress: st}, nil
}

type AggregateResult struct {
	Mode        string            `json:"mode"`
	Type        string            `json:"type"`
	Slug        string            `json:"slug"`
	Enrolled    bool              `json:"enrolled"`
	Started     bool              `json:"started"`
	StartedAt   string            `json:"started_at,omitempty"`
	Completed   bool              `json:"completed"`
	CompletedAt string            `json:"completed_at,omitempty"`
	Progress    completion.Counts `json:"progress"`
	Percent     int               `json:"percent"`
}

// Aggregate summarises one course or pathway. A course found both standalone
// and inside pathways reports the standalone entry.
func (s *Service) Aggregate(ctx context.Context, q validation.ProgressAggregateQuery) (AggregateResult, error) {
	out := AggregateResult{Mode: ModeAnonymous, Type: q.Type, Slug: q.Slug}
	if s.anonymous(q.Email, q.ContactID) {
		return out, nil
	}
	_, st, err := s.state(ctx, q.Email, q.ContactID)
	if err != nil {
		return AggregateResult{}, err
	}
	out.Mode = ModeAuthenticated

	switch completion.Kind(q.Type) {
	case completion.KindCourse:
		c := findCourse(st, q.Slug)
		if c == nil {
			c = &progress.CourseProgress{}
		}
		r := s.Metadata.CourseCompletion(q.Slug, c.Modules)
		out.Enrolled, out.Started, out.StartedAt = c.Enrolled, c.Started, c.StartedAt
		out.Completed, out.CompletedAt = r.Completed, c.CompletedAt
		out.Progress, out.Percent = r.Progress, r.Percent
	case completion.KindPathway:
		p := st.Pathways[q.Slug]
		if p == nil {
			p = &progress.PathwayProgress{}
		}
		r := s.Metadata.PathwayCompletion(q.Slug, p)
		out.Enrolled, out.Started, out.StartedAt = p.Enrolled, p.Started, p.StartedAt
		out.Completed, out.CompletedAt = r.Completed, p.CompletedAt
		out.Progress, out.Percent = r.Progress, r.Percent
	}
	return out, nil
}

func findCourse(st *progress.State, slug string) *progress.CourseProgress {
	if c, ok := st.Courses[slug]; ok {
		return c
	}
	for _, ps := range sortedKeys(st.Pathways) {
		if c, ok := st.Pathways[ps].Courses[slug]; ok {
			return c
		}
	}
	return nil
}

type EnrollmentItem struct {
	Slug             string `json:"slug"`
	Pathway          string `json:"pathway,omitempty"`
	EnrolledAt       string `json:"enrolled_at,omitempty"`
	EnrollmentSource string `json:"enrollment_source,omitempty"`
}

type EnrollmentsResult struct {
	Mode        string `json:"mode"`
	Enrollments struct {
		Pathways []EnrollmentItem `json:"pathways"`
		Courses  []EnrollmentItem `json:"courses"`
	} `json:"enrollments"`
}

// Enrollments lists enrolled pathways and courses, nested courses included.
func (s *Service) Enrollments(ctx context.Context, q validation.EnrollmentsListQuery) (EnrollmentsResult, error) {
	var out EnrollmentsResult
	out.Mode = ModeAnonymous
	out.Enrollments.Pathways = []EnrollmentItem{}
	out.Enrollments.Courses = []EnrollmentItem{}
	if s.anonymous(q.Email, q.ContactID) {
		return out, nil
	}
	_, st, err := s.state(ctx, q.Email, q.ContactID)
	if err != nil {
		return EnrollmentsResult{}, err
	}
	out.Mode = ModeAuthenticated
	for _, ps := range sortedKeys(st.Pathways) {
		p := st.Pathways[ps]
		if p.Enrolled {
			out.Enrollments.Pathways = append(out.Enrollments.Pathways,
				EnrollmentItem{Slug: ps, EnrolledAt: p.EnrolledAt, EnrollmentSource: p.EnrollmentSource})
		}
		for _, cs := range sortedKeys(p.Courses) {
			if c := p.Courses[cs]; c.Enrolled {
				out.Enrollments.Courses = append(out.Enrollments.Courses,
					EnrollmentItem{Slug: cs, Pathway: ps, EnrolledAt: c.EnrolledAt, EnrollmentSource: c.EnrollmentSource})
			}
		}
	}
	for _, cs := range sortedKeys(st.Courses) {
		if c := st.Courses[cs]; c.Enrolled {
			out.Enrollments.Courses = append(out.Enrollments.Courses,
				EnrollmentItem{Slug: cs, EnrolledAt: c.EnrolledAt, EnrollmentSource: c.EnrollmentSource})
		}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
