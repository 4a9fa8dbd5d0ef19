package domain

import "strings"

// Pathway groups courses (hierarchical) or modules (legacy) into a learning path.
// When both are present, Courses takes precedence for progress tracking.
type Pathway struct {
	Slug            string         `json:"slug"`
	Title           string         `json:"title"`
	MetaDescription string         `json:"meta_description,omitempty"`
	SummaryMarkdown string         `json:"summary_markdown"`
	Modules         []string       `json:"modules,omitempty"`
	Courses         []string       `json:"courses,omitempty"`
	BadgeImageURL   string         `json:"badge_image_url,omitempty"`
	DisplayOrder    int            `json:"display_order,omitempty"`
	Tags            string         `json:"tags,omitempty"`
	ContentBlocks   []ContentBlock `json:"content_blocks,omitempty"`
	SocialImage     string         `json:"social_image,omitempty"`

	SourceFile string `json:"-"`
}

// HasCourses reports whether the pathway is course based.
func (p Pathway) HasCourses() bool {
	return len(p.Courses) > 0
}

func (p Pathway) Missing() []string {
	var out []string
	if strings.TrimSpace(p.Slug) == "" {
		out = append(out, "slug")
	}
	if strings.TrimSpace(p.Title) == "" {
		out = append(out, "title")
	}
	if strings.TrimSpace(p.SummaryMarkdown) == "" {
		out = append(out, "summary_markdown")
	}
	if p.Modules == nil && p.Courses == nil {
		out = append(out, "modules or courses")
	}
	return out
}
