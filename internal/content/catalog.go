package content

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"hedgehog-learn/internal/domain"
)

// Catalog is the filesystem view of all learning content. Lookups are by
// lowercased slug.
type Catalog struct {
	Modules  []domain.Module
	Courses  []domain.Course
	Pathways []domain.Pathway
	Problems []Problem

	modules  map[string]domain.Module
	courses  map[string]domain.Course
	pathways map[string]domain.Pathway
}

// Load reads modules/, courses/ and pathways/ below root.
func Load(root string, log *zap.Logger) (*Catalog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	mods, mp, err := LoadModules(filepath.Join(root, "modules"), log)
	if err != nil {
		return nil, fmt.Errorf("load modules: %w", err)
	}
	courses, cp, err := LoadCourses(filepath.Join(root, "courses"))
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	pathways, pp, err := LoadPathways(filepath.Join(root, "pathways"))
	if err != nil {
		return nil, fmt.Errorf("load pathways: %w", err)
	}

	c := NewCatalog(mods, courses, pathways)
	c.Problems = append(append(append(c.Problems, mp...), cp...), pp...)
	log.Debug("content catalog loaded",
		zap.Int("modules", len(c.Modules)),
		zap.Int("courses", len(c.Courses)),
		zap.Int("pathways", len(c.Pathways)),
		zap.Int("problems", len(c.Problems)))
	return c, nil
}

// NewCatalog indexes already loaded content.
func NewCatalog(mods []domain.Module, courses []domain.Course, pathways []domain.Pathway) *Catalog {
	c := &Catalog{
		Modules:  mods,
		Courses:  courses,
		Pathways: pathways,
		modules:  make(map[string]domain.Module, len(mods)),
		courses:  make(map[string]domain.Course, len(courses)),
		pathways: make(map[string]domain.Pathway, len(pathways)),
	}
	for _, m := range mods {
		c.modules[key(m.Slug)] = m
		// Courses may reference a module by its directory name.
		if d := key(m.Dir); d != "" {
			if _, ok := c.modules[d]; !ok {
				c.modules[d] = m
			}
		}
	}
	for _, co := range courses {
		c.courses[key(co.Slug)] = co
	}
	for _, p := range pathways {
		c.pathways[key(p.Slug)] = p
	}
	return c
}

func key(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

func (c *Catalog) Module(slug string) (domain.Module, bool) {
	m, ok := c.modules[key(slug)]
	return m, ok
}

func (c *Catalog) Course(slug string) (domain.Course, bool) {
	co, ok := c.courses[key(slug)]
	return co, ok
}

func (c *Catalog) Pathway(slug string) (domain.Pathway, bool) {
	p, ok := c.pathways[key(slug)]
	return p, ok
}

func (c *Catalog) HasModule(slug string) bool {
	_, ok := c.modules[key(slug)]
	return ok
}

func (c *Catalog) HasCourse(slug string) bool {
	_, ok := c.courses[key(slug)]
	return ok
}

// ModuleSlugs returns the set of known module slugs.
func (c *Catalog) ModuleSlugs() map[string]bool {
	out := make(map[string]bool, len(c.Modules))
	for _, m := range c.Modules {
		out[key(m.Slug)] = true
	}
	return out
}

func (c *Catalog) CourseSlugs() map[string]bool {
	out := make(map[string]bool, len(c.Courses))
	for _, co := range c.Courses {
		out[key(co.Slug)] = true
	}
	return out
}

// EstimatedMinutes sums module minutes; unknown modules count as 0.
func (c *Catalog) EstimatedMinutes(moduleSlugs []string) int {
	total := 0
	for _, s := range moduleSlugs {
		if m, ok := c.Module(s); ok {
			total += m.EstimatedMinutes
		}
	}
	return total
}

// PathwayModuleCount counts direct modules, or the modules of every course
// for a course based pathway.
func (c *Catalog) PathwayModuleCount(p domain.Pathway) int {
	if !p.HasCourses() {
		return len(p.Modules)
	}
	n := 0
	for _, s := range p.Courses {
		if co, ok := c.Course(s); ok {
			n += len(co.Modules)
		}
	}
	return n
}

func (c *Catalog) PathwayMinutes(p domain.Pathway) int {
	if !p.HasCourses() {
		return c.EstimatedMinutes(p.Modules)
	}
	total := 0
	for _, s := range p.Courses {
		if co, ok := c.Course(s); ok {
			total += c.EstimatedMinutes(co.Modules)
		}
	}
	return total
}
