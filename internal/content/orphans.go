package content

import "sort"

// UnreferencedModules lists module slugs that no course, pathway or content
// block points at. Archived modules are ignored.
func (c *Catalog) UnreferencedModules() []string {
	used := map[string]bool{}
	mark := func(slugs []string) {
		for _, s := range slugs {
			if m, ok := c.Module(s); ok {
				used[key(m.Slug)] = true
			}
		}
	}
	for _, co := range c.Courses {
		mark(co.Modules)
		for _, b := range co.ContentBlocks {
			mark([]string{b.ModuleSlug})
		}
	}
	for _, p := range c.Pathways {
		mark(p.Modules)
		for _, b := range p.ContentBlocks {
			mark([]string{b.ModuleSlug})
		}
	}

	var out []string
	for _, m := range c.Modules {
		if m.Archived || used[key(m.Slug)] {
			continue
		}
		out = append(out, m.Slug)
	}
	sort.Strings(out)
	return out
}
