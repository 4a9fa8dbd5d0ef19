package mappers

import (
	"fmt"
	"strings"

	"hedgehog-learn/internal/content"
	"hedgehog-learn/internal/domain"
	"hedgehog-learn/internal/hubspot"
)

// CourseRow maps a course file into a courses table row. Minutes are summed
// from the catalog's modules.
func CourseRow(c domain.Course, cat *content.Catalog) (hubspot.Row, error) {
	summary, err := content.RenderMarkdown(c.SummaryMarkdown)
	if err != nil {
		return hubspot.Row{}, fmt.Errorf("render %s: %w", c.Slug, err)
	}
	modules, err := jsonOrEmpty(c.Modules, true)
	if err != nil {
		return hubspot.Row{}, err
	}
	blocks, err := jsonOrEmpty(c.ContentBlocks, c.ContentBlocks != nil)
	if err != nil {
		return hubspot.Row{}, err
	}

	return hubspot.Row{
		Path: strings.ToLower(c.Slug),
		Name: c.Title,
		Values: map[string]any{
			"slug":                c.Slug,
			"title":               c.Title,
			"summary_markdown":    summary,
			"module_slugs_json":   modules,
			"estimated_minutes":   cat.EstimatedMinutes(c.Modules),
			"badge_image_url":     c.BadgeImageURL,
			"display_order":       orDefault(c.DisplayOrder, defaultDisplayOrder),
			"tags":                c.Tags,
			"content_blocks_json": blocks,
		},
	}, nil
}
