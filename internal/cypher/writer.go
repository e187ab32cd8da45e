package cypher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"orgfinder/internal/llm"
	"orgfinder/internal/model"
)

// ErrUnsafeQuery is returned when generated text is not a read-only query
var ErrUnsafeQuery = errors.New("generated query is not a read-only query")

// LLMBuilder asks a text generator to write the query and falls back to the
// template when generation fails or yields an unusable query. The generated
// query must use the template's parameters.
type LLMBuilder struct {
	gen    llm.Generator
	schema string
	logger *zap.Logger
}

// NewLLMBuilder creates a new LLM-backed builder
func NewLLMBuilder(gen llm.Generator, schema string, logger *zap.Logger) *LLMBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMBuilder{gen: gen, schema: schema, logger: logger.With(zap.String("component", "cypher"))}
}

// Build implements Builder
func (b *LLMBuilder) Build(ctx context.Context, req Request) (Query, model.Metrics, error) {
	template := Build(req)
	if b.gen == nil || !b.gen.IsEnabled() {
		return template, model.Metrics{}, nil
	}

	gen, err := b.gen.Generate(ctx, b.prompt(req, template), false)
	if err != nil {
		if ctx.Err() != nil {
			return Query{}, model.Metrics{}, ctx.Err()
		}
		b.logger.Warn("Query generation failed, using template", zap.Error(err))
		return template, model.Metrics{}, nil
	}
	metrics := gen.Metrics()

	text := CleanResponse(gen.Text)
	if !IsReadOnly(text) {
		b.logger.Warn("Generated query rejected, using template", zap.Error(ErrUnsafeQuery), zap.String("query", text))
		return template, metrics, nil
	}
	for name := range template.Params {
		if !strings.Contains(text, "$"+name) {
			b.logger.Warn("Generated query ignores a parameter, using template", zap.String("param", name))
			return template, metrics, nil
		}
	}
	if req.Spatial() {
		if found := ValidateSpatial(text); len(found) > 0 {
			b.logger.Warn("Spatial query contains text location filters", zap.Strings("filters", found))
		}
	}
	return Query{Text: text, Params: template.Params}, metrics, nil
}

func (b *LLMBuilder) prompt(req Request, template Query) string {
	names := make([]string, 0, len(template.Params))
	for name := range template.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var p strings.Builder
	p.WriteString("You write Cypher queries for a graph of social-service organizations.\n")
	p.WriteString("Organizations connect to (:Location {streetAddress, city, state, zipCode, latitude, longitude}) via HAS_LOCATION, ")
	p.WriteString("to (:Service {name, type}) via PROVIDES and to (:Time {day, hours}) via HAS_HOURS.\n")
	if b.schema != "" {
		fmt.Fprintf(&p, "\nGraph schema:\n%s\n", b.schema)
	}
	fmt.Fprintf(&p, "\nUser question: %s\n", req.Question)
	p.WriteString("\nUse exactly these parameters, never literal values:\n")
	for _, name := range names {
		fmt.Fprintf(&p, "- $%s = %v\n", name, template.Params[name])
	}
	if req.Spatial() {
		p.WriteString("\nThis is a spatial query: filter by distance only, never by city, street or zip code text.\n")
		p.WriteString("Return latitude, longitude and distance_miles and order by distance_miles ascending.\n")
	}
	p.WriteString("\nReturn the columns name, phone, category, locations, services and hours.\n")
	p.WriteString("A query equivalent to the following is correct; improve it only if the question needs it:\n\n")
	p.WriteString(template.Text)
	p.WriteString("\n\nRespond with the Cypher query only.\n")
	return p.String()
}

var (
	_ Builder = Template{}
	_ Builder = (*LLMBuilder)(nil)
)
