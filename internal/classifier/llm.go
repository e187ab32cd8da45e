package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"orgfinder/internal/llm"
	"orgfinder/internal/model"
)

// LLM asks a text generator for the intent split and the category plan.
// Any generation or parsing failure is answered by the heuristic and marked
// Degraded.
type LLM struct {
	gen      llm.Generator
	fallback *Heuristic
	locality string
	now      func() time.Time
	logger   *zap.Logger
}

// NewLLM creates a new LLM-backed classifier
func NewLLM(gen llm.Generator, fallback *Heuristic, locality string, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallback == nil {
		fallback = NewHeuristic(nil)
	}
	return &LLM{
		gen:      gen,
		fallback: fallback,
		locality: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(locality), ",")),
		now:      time.Now,
		logger:   logger.With(zap.String("component", "classifier")),
	}
}

type intentResponse struct {
	Time     string `json:"time_keywords"`
	Service  string `json:"service_keywords"`
	Location string `json:"location_keywords"`
}

// Extract implements Classifier
func (c *LLM) Extract(ctx context.Context, query string) (Extraction, error) {
	gen, err := c.gen.Generate(ctx, c.extractPrompt(query), true)
	if err != nil {
		if ctx.Err() != nil {
			return Extraction{}, ctx.Err()
		}
		c.logger.Warn("Intent extraction failed, using heuristic", zap.Error(err))
		return c.degradedExtraction(query, model.Metrics{}), nil
	}

	var resp intentResponse
	if err := llm.ParseJSON(gen.Text, &resp); err != nil {
		c.logger.Warn("Intent response unparseable, using heuristic", zap.Error(err))
		return c.degradedExtraction(query, gen.Metrics()), nil
	}

	return Extraction{
		Intent: model.ExtractedIntent{
			TimePhrase:     strings.TrimSpace(resp.Time),
			LocationPhrase: strings.TrimSpace(resp.Location),
			ServicePhrase:  strings.TrimSpace(resp.Service),
		},
		Metrics: gen.Metrics(),
		Source:  SourceLLM,
	}, nil
}

func (c *LLM) degradedExtraction(query string, metrics model.Metrics) Extraction {
	return Extraction{
		Intent:   c.fallback.ExtractIntent(query),
		Metrics:  metrics,
		Source:   SourceHeuristic,
		Degraded: true,
	}
}

// Categorize implements Classifier
func (c *LLM) Categorize(ctx context.Context, services []string) (Categorization, error) {
	if len(services) == 0 {
		return Categorization{Source: SourceLLM}, nil
	}

	gen, err := c.gen.Generate(ctx, c.categorizePrompt(services), true)
	if err != nil {
		if ctx.Err() != nil {
			return Categorization{}, ctx.Err()
		}
		c.logger.Warn("Categorization failed, using heuristic", zap.Error(err))
		return Categorization{Plan: BuildPlan(services), Source: SourceHeuristic, Degraded: true}, nil
	}

	var grouped map[string][]string
	if err := llm.ParseJSON(gen.Text, &grouped); err != nil {
		c.logger.Warn("Categorization response unparseable, using heuristic", zap.Error(err))
		return Categorization{Plan: BuildPlan(services), Metrics: gen.Metrics(), Source: SourceHeuristic, Degraded: true}, nil
	}

	return Categorization{Plan: orderPlan(grouped), Metrics: gen.Metrics(), Source: SourceLLM}, nil
}

func (c *LLM) extractPrompt(query string) string {
	var p strings.Builder
	p.WriteString("You are a query analysis and routing expert. Extract the keywords of the user's query that relate to time, service and location.\n")
	fmt.Fprintf(&p, "The current date is %s.", c.now().Format("January 2, 2006"))
	if c.locality != "" {
		fmt.Fprintf(&p, " The user is located in %s.", c.locality)
	}
	p.WriteString("\n\nRULES\n")
	fmt.Fprintf(&p, "1. Analyze the user's query: %q\n", query)
	p.WriteString("2. Keep a service attribute such as 'free', '24-hour' or 'emergency' together with the service in service_keywords.\n")
	p.WriteString("3. A proper name such as 'Wadsworth' or 'Haverford' is more likely a location than a service.\n")
	p.WriteString(`4. Return one JSON object with the keys "time_keywords", "service_keywords" and "location_keywords".` + "\n")
	p.WriteString("5. Use an empty string for a category that is not mentioned.\n")
	p.WriteString("\nGRAPH\n")
	p.WriteString("Location: streetAddress, city, state, zipCode. Service: name, type (Free or Paid). Time: day, hours.\n")
	p.WriteString("\nEXAMPLES\n")
	p.WriteString(`"I need a halal meal this evening in West Philly" -> {"time_keywords": "this evening", "service_keywords": "halal meal", "location_keywords": "West Philly"}` + "\n")
	p.WriteString(`"haircut" -> {"time_keywords": "", "service_keywords": "haircut", "location_keywords": ""}` + "\n")
	p.WriteString(`"free copy" -> {"time_keywords": "", "service_keywords": "free copy", "location_keywords": ""}` + "\n")
	p.WriteString(`"Wadsworth" -> {"time_keywords": "", "service_keywords": "", "location_keywords": "Wadsworth"}` + "\n")
	return p.String()
}

func (c *LLM) categorizePrompt(services []string) string {
	var p strings.Builder
	p.WriteString("Assign each detected service to the organization category whose primary purpose it serves.\n\n")
	fmt.Fprintf(&p, "Detected services: %s\n\n", strings.Join(services, ", "))
	p.WriteString("Categories and typical services:\n")
	for _, category := range CategoryOrder {
		fmt.Fprintf(&p, "- %s: %s\n", category, strings.Join(CategoryKeywords[category], ", "))
	}
	p.WriteString("\nRules:\n")
	p.WriteString("- meal, meals, food and dining belong to Food Bank.\n")
	p.WriteString("- printer, printing, wi-fi, internet and computer belong to Library.\n")
	p.WriteString("- therapy and psychiatric care belong to Mental Health; benefits, retirement and appeals to Social Security Office.\n")
	p.WriteString("- shelter and emergency housing belong to Temporary Shelter.\n")
	p.WriteString("- Only return categories that have at least one service.\n")
	p.WriteString("\nRespond with JSON only, for example {\"Food Bank\": [\"meal\"], \"Library\": [\"printer\"]}\n")
	return p.String()
}

var _ Classifier = (*LLM)(nil)
