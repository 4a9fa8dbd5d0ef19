package sync

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"hedgehog-learn/internal/hubspot"
	"hedgehog-learn/internal/mappers"
)

// Update pairs a desired row with the id of the existing row it replaces.
type Update struct {
	RowID string
	Row   hubspot.Row
}

// Plan is the set of writes that brings a table in line with content.
type Plan struct {
	Create    []hubspot.Row
	Update    []Update
	Unchanged int
	Delete    []hubspot.Row
	// Archive rows are rewritten with the archived tag added.
	Archive []Update
}

func (p Plan) Writes() int {
	return len(p.Create) + len(p.Update) + len(p.Delete) + len(p.Archive)
}

// Diff matches desired rows to existing rows by path.
// Existing rows without content are deleted when opts.DeleteMissing is set;
// rows whose slug is in opts.ArchivedSlugs are tagged or deleted per opts.ArchiveStrategy.
func Diff(desired, existing []hubspot.Row, opts Options) Plan {
	byPath := make(map[string]hubspot.Row, len(existing))
	for _, r := range existing {
		p := normPath(r.Path)
		if p == "" {
			continue
		}
		byPath[p] = r
	}

	var plan Plan
	want := make(map[string]bool, len(desired))
	for _, d := range desired {
		p := normPath(d.Path)
		want[p] = true
		cur, ok := byPath[p]
		if !ok {
			plan.Create = append(plan.Create, d)
			continue
		}
		if needsUpdate(d, cur) {
			plan.Update = append(plan.Update, Update{RowID: cur.ID, Row: d})
		} else {
			plan.Unchanged++
		}
	}

	if !opts.DeleteMissing {
		return plan
	}
	for _, r := range existing {
		p := normPath(r.Path)
		if want[p] || opts.Protected[p] {
			continue
		}
		if opts.ArchivedSlugs[p] && opts.ArchiveStrategy != ArchiveDelete {
			if mappers.HasTag(r.StringValue("tags"), mappers.ArchivedTag) {
				continue
			}
			plan.Archive = append(plan.Archive, Update{RowID: r.ID, Row: archivedCopy(r)})
			continue
		}
		plan.Delete = append(plan.Delete, r)
	}
	return plan
}

func archivedCopy(r hubspot.Row) hubspot.Row {
	values := make(map[string]any, len(r.Values)+1)
	for k, v := range r.Values {
		values[k] = v
	}
	values["tags"] = mappers.AddTag(r.StringValue("tags"), mappers.ArchivedTag)
	return hubspot.Row{Name: r.Name, Path: r.Path, Values: values}
}

// needsUpdate compares the columns we write. Columns HubDB adds on its own
// are ignored.
func needsUpdate(want, cur hubspot.Row) bool {
	if strings.TrimSpace(want.Name) != strings.TrimSpace(cur.Name) {
		return true
	}
	for k, v := range want.Values {
		if !sameValue(v, cur.Values[k]) {
			return true
		}
	}
	return false
}

func sameValue(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		// select options come back with extra fields; the name identifies them.
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		return fmt.Sprint(w["name"]) == fmt.Sprint(g["name"])
	case int:
		f, ok := number(got)
		return ok && math.Abs(f-float64(w)) < 0.001
	case string:
		if got == nil {
			return w == ""
		}
		s, ok := got.(string)
		return ok && strings.TrimSpace(s) == strings.TrimSpace(w)
	default:
		return fmt.Sprint(want) == fmt.Sprint(got)
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func normPath(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
