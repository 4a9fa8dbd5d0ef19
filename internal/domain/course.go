package domain

import "strings"

// Block types allowed in a course or pathway content_blocks array.
const (
	BlockText      = "text"
	BlockCallout   = "callout"
	BlockModuleRef = "module_ref"
	BlockCourseRef = "course_ref"
)

// ContentBlock is one entry of a course or pathway layout.
type ContentBlock struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Title        string `json:"title,omitempty"`
	BodyMarkdown string `json:"body_markdown,omitempty"`
	ModuleSlug   string `json:"module_slug,omitempty"`
	CourseSlug   string `json:"course_slug,omitempty"`
}

// Course is an ordered list of modules, read from content/courses/<file>.json.
type Course struct {
	Slug            string         `json:"slug"`
	Title           string         `json:"title"`
	SummaryMarkdown string         `json:"summary_markdown"`
	Modules         []string       `json:"modules"`
	BadgeImageURL   string         `json:"badge_image_url,omitempty"`
	DisplayOrder    int            `json:"display_order,omitempty"`
	Tags            string         `json:"tags,omitempty"`
	ContentBlocks   []ContentBlock `json:"content_blocks,omitempty"`

	// SourceFile is the file the course was read from.
	SourceFile string `json:"-"`
}

// Missing returns the names of required fields that are empty.
func (c Course) Missing() []string {
	var out []string
	if strings.TrimSpace(c.Slug) == "" {
		out = append(out, "slug")
	}
	if strings.TrimSpace(c.Title) == "" {
		out = append(out, "title")
	}
	if strings.TrimSpace(c.SummaryMarkdown) == "" {
		out = append(out, "summary_markdown")
	}
	if c.Modules == nil {
		out = append(out, "modules")
	}
	return out
}
