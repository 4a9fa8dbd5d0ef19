package mappers

import (
	"fmt"
	"strings"

	"hedgehog-learn/internal/content"
	"hedgehog-learn/internal/domain"
	"hedgehog-learn/internal/hubspot"
)

const metaDescriptionMax = 160

// MetaDescription is the explicit value, or the summary without tags cut to 160 runes.
func MetaDescription(p domain.Pathway) string {
	if strings.TrimSpace(p.MetaDescription) != "" {
		return p.MetaDescription
	}
	return content.Excerpt(p.SummaryMarkdown, metaDescriptionMax)
}

// PathwayRow maps a pathway file into a pathways table row. Counts and
// minutes go through courses for course based pathways.
func PathwayRow(p domain.Pathway, cat *content.Catalog) (hubspot.Row, error) {
	summary, err := content.RenderMarkdown(p.SummaryMarkdown)
	if err != nil {
		return hubspot.Row{}, fmt.Errorf("render %s: %w", p.Slug, err)
	}
	modules, err := jsonOrEmpty(p.Modules, p.Modules != nil)
	if err != nil {
		return hubspot.Row{}, err
	}
	courses, err := jsonOrEmpty(p.Courses, p.Courses != nil)
	if err != nil {
		return hubspot.Row{}, err
	}
	blocks, err := jsonOrEmpty(p.ContentBlocks, p.ContentBlocks != nil)
	if err != nil {
		return hubspot.Row{}, err
	}

	minutes := cat.PathwayMinutes(p)
	return hubspot.Row{
		Path: strings.ToLower(p.Slug),
		Name: p.Title,
		Values: map[string]any{
			"meta_description":        MetaDescription(p),
			"summary_markdown":        summary,
			"module_slugs_json":       modules,
			"course_slugs_json":       courses,
			"module_count":            cat.PathwayModuleCount(p),
			"total_estimated_minutes": minutes,
			"estimated_minutes":       minutes,
			"badge_image_url":         p.BadgeImageURL,
			"display_order":           orDefault(p.DisplayOrder, defaultDisplayOrder),
			"tags":                    p.Tags,
			"content_blocks_json":     blocks,
			"social_image_url":        p.SocialImage,
		},
	}, nil
}
