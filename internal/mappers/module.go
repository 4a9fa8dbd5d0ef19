package mappers

import (
	"encoding/json"
	"fmt"
	"strings"

	"hedgehog-learn/internal/content"
	"hedgehog-learn/internal/domain"
	"hedgehog-learn/internal/hubspot"
)

const (
	defaultModuleMinutes = 30
	defaultDisplayOrder  = 999
)

// difficultyOptions are the select options of the modules table difficulty column.
var difficultyOptions = map[string]map[string]any{
	domain.Beginner:     {"id": "1", "name": domain.Beginner, "type": "option"},
	domain.Intermediate: {"id": "2", "name": domain.Intermediate, "type": "option"},
	domain.Advanced:     {"id": "3", "name": domain.Advanced, "type": "option"},
}

// DifficultyOption returns the select value for a difficulty; unknown values map to beginner.
func DifficultyOption(d string) map[string]any {
	if opt, ok := difficultyOptions[strings.ToLower(strings.TrimSpace(d))]; ok {
		return opt
	}
	return difficultyOptions[domain.Beginner]
}

type ModuleOptions struct {
	StripLeadingH1 bool
}

// ModuleRow maps a module README into a modules table row.
func ModuleRow(m domain.Module, opts ModuleOptions) (hubspot.Row, error) {
	html, err := content.RenderMarkdown(m.Body)
	if err != nil {
		return hubspot.Row{}, fmt.Errorf("render %s: %w", m.Slug, err)
	}
	if opts.StripLeadingH1 {
		html = content.StripLeadingH1(html)
	}

	tags := strings.Join(m.Tags, ",")
	if m.Archived {
		tags = AddTag(tags, ArchivedTag)
	}

	prereq := ""
	if m.Meta != nil && m.Meta.Prerequisites != nil {
		b, err := json.Marshal(m.Meta.Prerequisites)
		if err != nil {
			return hubspot.Row{}, err
		}
		prereq = string(b)
	}

	return hubspot.Row{
		Name: m.Title,
		Path: strings.ToLower(m.Slug),
		Values: map[string]any{
			"meta_description":   m.Description,
			"difficulty":         DifficultyOption(m.Difficulty),
			"estimated_minutes":  orDefault(m.EstimatedMinutes, defaultModuleMinutes),
			"tags":               tags,
			"full_content":       html,
			"display_order":      orDefault(m.Order, defaultDisplayOrder),
			"social_image_url":   m.SocialImage,
			"prerequisites_json": prereq,
		},
	}, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func jsonOrEmpty(v any, present bool) (string, error) {
	if !present {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
