package schedule

import (
	"context"
	"fmt"
)

// TemplateSource supplies the active templates for a weekday and service type.
type TemplateSource interface {
	ListActive(ctx context.Context, weekday Weekday, service ServiceType) ([]Template, error)
}

// Generator produces bookable slot times from the template store.
type Generator struct {
	source TemplateSource
}

func NewGenerator(source TemplateSource) *Generator {
	return &Generator{source: source}
}

// Slots returns the ordered slot times for weekday and service. A weekday
// without active templates yields an empty list.
func (g *Generator) Slots(ctx context.Context, weekday Weekday, service ServiceType) ([]string, error) {
	if !weekday.Valid() {
		return []string{}, nil
	}
	templates, err := g.source.ListActive(ctx, weekday, service)
	if err != nil {
		return nil, fmt.Errorf("schedule: generate slots: %w", err)
	}
	return Expand(templates, weekday, service), nil
}
