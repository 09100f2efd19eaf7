// Package answer classifies incoming questions and synthesizes grounded
// answers from retrieved chunks.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/enrich"
	"github.com/altmanac/altmanac/engine/retrieve"
)

const classifySystemPrompt = `You classify questions about Sam Altman's interviews into exactly one type:
- factual: asks for a specific fact, quote, date, or event
- analytical: asks to analyze or explain positions, reasoning, or tradeoffs
- meta: asks about the corpus itself (which interviews exist, coverage, dates)
- exploratory: open-ended, asks what was said about a broad topic
- comparative: asks to compare positions across time, topics, or interviews
- creative: asks to extrapolate, speculate, or compose something new
Respond with a JSON object: {"question_type": "<type>", "confidence": <float between 0 and 1>}.`

const synthesizeSystemPrompt = `You answer questions about Sam Altman using only the provided interview excerpts.
Rules:
1. Use only information from the excerpts; do not add outside knowledge.
2. Quote directly from an excerpt where possible, in quotation marks.
3. If the excerpts do not contain the answer, say so explicitly.
4. Cite the excerpts supporting each claim by their bracketed number, e.g. [2].
5. If excerpts conflict, acknowledge the discrepancy.
6. For factual questions, give specific, precise answers with direct quotes.
7. For analytical questions, synthesize insights and attribute each to its excerpt.
8. For exploratory and comparative questions, structure the answer around what the excerpts reveal.
Respond with a JSON object:
- "answer": the grounded response, citing excerpts as [1], [2], etc.
- "reasoning": an array of strings naming which excerpts you used, how they
  support the answer, and any gaps in the available material.`

// Classification is the labeled question type with the model's confidence.
type Classification struct {
	Type       string  `json:"question_type"`
	Confidence float64 `json:"confidence"`
}

// Answer is the structured synthesis result.
type Answer struct {
	Answer    string   `json:"answer"`
	Reasoning []string `json:"reasoning"`
}

// Service wraps a completion generator with the question-type and
// synthesis prompts.
type Service struct {
	gen    enrich.Generator
	logger *slog.Logger
}

// NewService wires an answer service.
func NewService(gen enrich.Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gen: gen, logger: logger}
}

// Classify labels a query with one of the known question types. An
// unparseable response or unknown label is an error; serving a guessed
// profile would silently skew retrieval.
func (s *Service) Classify(ctx context.Context, query string) (Classification, error) {
	raw, err := s.gen.Generate(ctx, classifySystemPrompt, query)
	if err != nil {
		return Classification{}, fmt.Errorf("answer: classify: %w", err)
	}

	var parsed Classification
	if err := enrich.ParseStructured(raw, &parsed); err != nil {
		return Classification{}, fmt.Errorf("answer: classify: %w", err)
	}
	parsed.Type = strings.ToLower(strings.TrimSpace(parsed.Type))
	if !domain.ValidQuestionType(parsed.Type) {
		return Classification{}, fmt.Errorf("answer: unsupported question type %q: %w", parsed.Type, domain.ErrGeneration)
	}
	return parsed, nil
}

// Synthesize produces a grounded answer with its reasoning trail. With no
// hits it reports the gap instead of calling the model.
func (s *Service) Synthesize(ctx context.Context, query, questionType string, hits []retrieve.Hit) (Answer, error) {
	if len(hits) == 0 {
		return Answer{
			Answer:    "No relevant interview passages were found for this question.",
			Reasoning: []string{"no passages were retrieved, so nothing could be cited"},
		}, nil
	}

	var b strings.Builder
	b.WriteString("Excerpts:\n")
	for i, hit := range hits {
		fmt.Fprintf(&b, "[%d] %s", i+1, hit.Title)
		if hit.UploadDate != "" {
			fmt.Fprintf(&b, " (%s)", hit.UploadDate)
		}
		b.WriteString("\n")
		text := hit.Document
		if text == "" {
			text = hit.Summary
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question type: %s\nQuestion: %s", questionType, query)

	raw, err := s.gen.Generate(ctx, synthesizeSystemPrompt, b.String())
	if err != nil {
		return Answer{}, fmt.Errorf("answer: synthesize: %w", err)
	}

	var parsed Answer
	if err := enrich.ParseStructured(raw, &parsed); err != nil {
		return Answer{}, fmt.Errorf("answer: synthesize: %w", err)
	}
	parsed.Answer = strings.TrimSpace(parsed.Answer)
	if parsed.Answer == "" {
		return Answer{}, fmt.Errorf("answer: synthesize: response carries no answer: %w", domain.ErrGeneration)
	}
	return parsed, nil
}
