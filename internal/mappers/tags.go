package mappers

import "strings"

// ArchivedTag soft-hides a row from catalog listings.
const ArchivedTag = "archived"

// SplitTags splits a csv tag column, dropping blanks.
func SplitTags(csv string) []string {
	var out []string
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// AddTag appends tag to a csv column unless present (case-insensitive).
func AddTag(csv, tag string) string {
	tags := SplitTags(csv)
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return strings.Join(tags, ",")
		}
	}
	return strings.Join(append(tags, tag), ",")
}

func HasTag(csv, tag string) bool {
	for _, t := range SplitTags(csv) {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
