// Package response turns retrieved records into the answer shown to the user.
package response

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"orgfinder/internal/llm"
	"orgfinder/internal/memory"
	"orgfinder/internal/model"
)

// NoResults is the answer text when nothing was retrieved
const NoResults = "No results found for your query."

// maxMainServices is the number of services listed in an organization's summary line
const maxMainServices = 3

// Request is the input of one answer
type Request struct {
	Question string
	Records  []model.Record
	Spatial  bool

	// Focused asks for only the detail the question names
	Focused bool

	// MemoryContext is the previous turn, included in the prompt when set
	MemoryContext string
}

// Responder writes answers with a text generator and falls back to a
// deterministic rendering when generation is unavailable or fails.
type Responder struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewResponder creates a new responder. gen may be nil.
func NewResponder(gen llm.Generator, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{gen: gen, logger: logger.With(zap.String("component", "response"))}
}

// Respond answers req. The error is only set when ctx is done.
func (r *Responder) Respond(ctx context.Context, req Request) (model.Answer, model.Metrics, error) {
	mode := Mode(req)
	if mode == model.AnswerNone {
		return model.Answer{Mode: mode, Text: NoResults}, model.Metrics{}, nil
	}

	answer := model.Answer{Mode: mode}
	if mode != model.AnswerFocused {
		answer.Organizations = Organizations(req.Records, req.Spatial)
	}

	var metrics model.Metrics
	text, gen, err := r.generate(ctx, mode, req)
	switch {
	case err != nil && ctx.Err() != nil:
		return model.Answer{}, model.Metrics{}, ctx.Err()
	case err != nil:
		r.logger.Warn("Response generation failed, using the plain rendering", zap.String("mode", string(mode)), zap.Error(err))
	case text != "":
		metrics = gen.Metrics()
		answer.Generated = true
	}

	if mode == model.AnswerFocused {
		answer.Text = text
		if !answer.Generated {
			answer.Text = focusedAnswer(req.Question, req.Records)
		}
		return answer, metrics, nil
	}

	answer.Intro = defaultIntro(len(req.Records), req.Spatial)
	if answer.Generated {
		if intro := CleanIntro(introOf(text)); intro != "" {
			answer.Intro = intro
		}
		answer.Text = text
	} else {
		answer.Text = render(answer.Intro, answer.Organizations)
	}
	return answer, metrics, nil
}

// Mode picks the answer style: focused before spatial before simple
func Mode(req Request) model.AnswerMode {
	switch {
	case len(req.Records) == 0:
		return model.AnswerNone
	case req.Focused:
		return model.AnswerFocused
	case req.Spatial:
		return model.AnswerSpatial
	default:
		return model.AnswerSimple
	}
}

func (r *Responder) generate(ctx context.Context, mode model.AnswerMode, req Request) (string, *llm.Generation, error) {
	if r.gen == nil || !r.gen.IsEnabled() {
		return "", nil, nil
	}
	prompt, err := buildPrompt(mode, req)
	if err != nil {
		return "", nil, err
	}
	gen, err := r.gen.Generate(ctx, prompt, false)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(gen.Text), gen, nil
}

func buildPrompt(mode model.AnswerMode, req Request) (string, error) {
	records, err := json.Marshal(req.Records)
	if err != nil {
		return "", fmt.Errorf("encode records: %w", err)
	}

	var p strings.Builder
	switch mode {
	case model.AnswerFocused:
		p.WriteString("Use the following context to answer the question with a FOCUSED response. Only provide the specific information requested.\n\n")
	default:
		p.WriteString("Use the following context to answer the question. Include ALL details from the context in your answer.\n\n")
	}
	fmt.Fprintf(&p, "Context: %s\n", records)
	if req.MemoryContext != "" {
		p.WriteString(req.MemoryContext)
	}
	fmt.Fprintf(&p, "Question: %s\n\n", req.Question)

	switch mode {
	case model.AnswerFocused:
		p.WriteString(`Rules:
1. Answer only the specific question asked, without the full organization details.
2. For services, list only the services asked about.
3. For hours on a specific day, show only that day's hours.
4. For contact information, show only the contact details.
5. Use simple bullet points (*) only when listing multiple items.

Answer focusing only on what was asked:`)
	case model.AnswerSpatial:
		p.WriteString(`Formatting:
1. Start with a brief answer to the question.
2. Use bullet points (*) for all details.
3. Always include the distance of each organization in miles.
4. List name, distance, phone, category, address, hours and services.

Answer:`)
	default:
		p.WriteString(`Formatting:
1. Start with a brief answer to the question.
2. Use bullet points (*) for all details.
3. List name, phone, category, address, hours and services.

Answer:`)
	}
	return p.String(), nil
}

// Organizations summarizes records as numbered organizations
func Organizations(records []model.Record, spatial bool) []model.OrganizationSummary {
	out := make([]model.OrganizationSummary, 0, len(records))
	for i, rec := range records {
		org := model.OrganizationSummary{
			Number:   i + 1,
			Name:     nameOf(rec),
			Hours:    rec.Strings("hours"),
			Services: rec.Strings("services"),
		}
		if spatial {
			if d, ok := rec.Float("distance_miles"); ok {
				org.MainItems = append(org.MainItems, fmt.Sprintf("Distance: %.1f miles away", d))
			}
		}
		if phone, ok := rec.String("phone"); ok {
			org.MainItems = append(org.MainItems, "Phone: "+phone)
		}
		if address := addressOf(rec); address != "" {
			org.MainItems = append(org.MainItems, "Address: "+address)
		}
		if len(org.Services) > 0 {
			services := append([]string(nil), org.Services...)
			sort.Strings(services)
			if len(services) > maxMainServices {
				services = services[:maxMainServices]
			}
			org.MainItems = append(org.MainItems, "Services: "+strings.Join(services, ", "))
		}
		out = append(out, org)
	}
	return out
}

func nameOf(rec model.Record) string {
	for _, field := range memory.NameFields {
		if name, ok := rec.String(field); ok {
			return name
		}
	}
	return "Unknown Organization"
}

func addressOf(rec model.Record) string {
	if street, ok := rec.String("address"); ok {
		if zip, ok := rec.String("zip"); ok && !strings.Contains(street, zip) {
			return street + " " + zip
		}
		return street
	}
	if locations := rec.Strings("locations"); len(locations) > 0 {
		return locations[0]
	}
	return ""
}

func defaultIntro(count int, spatial bool) string {
	noun := "organizations"
	if count == 1 {
		noun = "organization"
	}
	if spatial {
		return fmt.Sprintf("%d %s near the requested location:", count, noun)
	}
	return fmt.Sprintf("%d %s matching your request:", count, noun)
}

func render(intro string, orgs []model.OrganizationSummary) string {
	var b strings.Builder
	b.WriteString(intro)
	for _, org := range orgs {
		fmt.Fprintf(&b, "\n%d. %s", org.Number, org.Name)
		for _, item := range org.MainItems {
			fmt.Fprintf(&b, "\n   * %s", item)
		}
	}
	return b.String()
}

var listLine = regexp.MustCompile(`^(\d+\.|\*|●|-)`)

// introOf returns the text before the first list item
func introOf(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if listLine.MatchString(strings.TrimSpace(line)) {
			break
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}

var (
	introLead  = regexp.MustCompile(`(?i)^(here are|here is|i found|found)\s+`)
	introTrail = regexp.MustCompile(`(?i)\s*(here are (all )?(the )?(available )?details|details|information)[:.]?\s*$`)
)

// CleanIntro strips filler from generated intro text and ends it with a colon
func CleanIntro(intro string) string {
	intro = introLead.ReplaceAllString(strings.TrimSpace(intro), "")
	intro = introTrail.ReplaceAllString(intro, "")
	intro = strings.TrimRight(strings.TrimSpace(intro), ".:")
	if intro == "" {
		return ""
	}
	return intro + ":"
}

var (
	asksHours    = regexp.MustCompile(`\b(hours?|open|close[sd]?|when)\b`)
	asksPhone    = regexp.MustCompile(`\b(phone|call|contact|number)\b`)
	asksAddress  = regexp.MustCompile(`\b(address|where|located|location)\b`)
	asksDistance = regexp.MustCompile(`\b(far|distance|close by|how close)\b`)
)

// focusedAnswer renders only the detail the question asks about, services by default
func focusedAnswer(question string, records []model.Record) string {
	q := strings.ToLower(question)
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		name := nameOf(rec)
		var detail string
		switch {
		case asksDistance.MatchString(q):
			if d, ok := rec.Float("distance_miles"); ok {
				detail = fmt.Sprintf("%.1f miles away", d)
			}
		case asksHours.MatchString(q):
			detail = strings.Join(rec.Strings("hours"), "; ")
		case asksPhone.MatchString(q):
			detail, _ = rec.String("phone")
		case asksAddress.MatchString(q):
			detail = addressOf(rec)
		default:
			detail = strings.Join(rec.Strings("services"), ", ")
		}
		if detail == "" {
			detail = "not listed"
		}
		lines = append(lines, fmt.Sprintf("* %s: %s", name, detail))
	}
	return strings.Join(lines, "\n")
}
