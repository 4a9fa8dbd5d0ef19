package content

import (
	"fmt"
	"strings"

	"hedgehog-learn/internal/domain"
)

// Reference error kinds.
const (
	MissingModule          = "missing_module"
	MissingCourse          = "missing_course"
	MissingContentBlockRef = "missing_content_block_ref"
)

// ReferenceError is a slug used by a course or pathway that does not exist.
type ReferenceError struct {
	Type           string `json:"type"`
	ParentType     string `json:"parentType"`
	ParentSlug     string `json:"parentSlug"`
	ReferencedSlug string `json:"referencedSlug"`
	Location       string `json:"location"`
}

// ReferenceErrors is returned when a sync must not proceed.
type ReferenceErrors []ReferenceError

func (e ReferenceErrors) Error() string {
	return fmt.Sprintf("content validation failed: %d orphaned reference(s)", len(e))
}

// lookup answers whether a slug exists. Slugs are compared case-insensitively.
type lookup func(slug string) bool

func setLookup(set map[string]bool) lookup {
	return func(s string) bool { return set[key(s)] }
}

// ValidateCourseReferences checks a course's modules array and module_ref blocks.
func ValidateCourseReferences(courseSlug string, modules []string, blocks []domain.ContentBlock, availableModules map[string]bool) []ReferenceError {
	return courseRefs(courseSlug, modules, blocks, setLookup(availableModules))
}

// ValidatePathwayReferences checks modules, courses and content block refs.
func ValidatePathwayReferences(pathwaySlug string, modules, courses []string, blocks []domain.ContentBlock, availableModules, availableCourses map[string]bool) []ReferenceError {
	return pathwayRefs(pathwaySlug, modules, courses, blocks, setLookup(availableModules), setLookup(availableCourses))
}

func courseRefs(slug string, modules []string, blocks []domain.ContentBlock, hasModule lookup) []ReferenceError {
	var errs []ReferenceError
	for _, m := range modules {
		if !hasModule(m) {
			errs = append(errs, ReferenceError{MissingModule, "course", slug, m, "modules array"})
		}
	}
	for i, b := range blocks {
		if b.Type == domain.BlockModuleRef && b.ModuleSlug != "" && !hasModule(b.ModuleSlug) {
			errs = append(errs, ReferenceError{MissingContentBlockRef, "course", slug, b.ModuleSlug, fmt.Sprintf("content_blocks[%d]", i)})
		}
	}
	return errs
}

func pathwayRefs(slug string, modules, courses []string, blocks []domain.ContentBlock, hasModule, hasCourse lookup) []ReferenceError {
	var errs []ReferenceError
	for _, m := range modules {
		if !hasModule(m) {
			errs = append(errs, ReferenceError{MissingModule, "pathway", slug, m, "modules array"})
		}
	}
	for _, c := range courses {
		if !hasCourse(c) {
			errs = append(errs, ReferenceError{MissingCourse, "pathway", slug, c, "courses array"})
		}
	}
	for i, b := range blocks {
		loc := fmt.Sprintf("content_blocks[%d]", i)
		switch {
		case b.Type == domain.BlockModuleRef && b.ModuleSlug != "" && !hasModule(b.ModuleSlug):
			errs = append(errs, ReferenceError{MissingContentBlockRef, "pathway", slug, b.ModuleSlug, loc})
		case b.Type == domain.BlockCourseRef && b.CourseSlug != "" && !hasCourse(b.CourseSlug):
			errs = append(errs, ReferenceError{MissingContentBlockRef, "pathway", slug, b.CourseSlug, loc})
		}
	}
	return errs
}

// ValidateCourses checks every course in the catalog.
func (c *Catalog) ValidateCourses() ReferenceErrors {
	var errs ReferenceErrors
	for _, co := range c.Courses {
		errs = append(errs, courseRefs(co.Slug, co.Modules, co.ContentBlocks, c.HasModule)...)
	}
	return errs
}

// ValidatePathways checks every pathway in the catalog.
func (c *Catalog) ValidatePathways() ReferenceErrors {
	var errs ReferenceErrors
	for _, p := range c.Pathways {
		errs = append(errs, pathwayRefs(p.Slug, p.Modules, p.Courses, p.ContentBlocks, c.HasModule, c.HasCourse)...)
	}
	return errs
}

// Validate runs course and pathway checks over the whole tree.
func (c *Catalog) Validate() ReferenceErrors {
	return append(c.ValidateCourses(), c.ValidatePathways()...)
}

// FormatReferenceErrors renders a report grouped by parent, in first-seen order.
func FormatReferenceErrors(errs []ReferenceError) string {
	if len(errs) == 0 {
		return ""
	}

	type group struct {
		parentType, parentSlug string
		errs                   []ReferenceError
	}
	var order []string
	groups := map[string]*group{}
	for _, e := range errs {
		k := e.ParentType + ":" + e.ParentSlug
		g, ok := groups[k]
		if !ok {
			g = &group{parentType: e.ParentType, parentSlug: e.ParentSlug}
			groups[k] = g
			order = append(order, k)
		}
		g.errs = append(g.errs, e)
	}

	var b strings.Builder
	b.WriteString("VALIDATION FAILED: Found orphaned references\n")
	for _, k := range order {
		g := groups[k]
		fmt.Fprintf(&b, "\n  %s: %s\n", strings.ToUpper(g.parentType), g.parentSlug)
		for _, e := range g.errs {
			fmt.Fprintf(&b, "    x Missing %s %q in %s\n", refNoun(e.Type), e.ReferencedSlug, e.Location)
		}
	}
	b.WriteString("\nFix these issues before syncing:\n")
	b.WriteString("   1. Create the missing modules/courses, OR\n")
	b.WriteString("   2. Remove the invalid references from the JSON files\n")
	return b.String()
}

func refNoun(kind string) string {
	switch kind {
	case MissingModule:
		return "module"
	case MissingCourse:
		return "course"
	default:
		return "reference"
	}
}
