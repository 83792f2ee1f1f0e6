// Package agent answers natural-language menu questions by feeding the
// cached menu to the answer engine and extracting the final answer from the
// returned step records.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/lifanwar/warung22/internal/perplexity"
)

// Searcher is the single operation the agent needs from the client.
type Searcher interface {
	Search(ctx context.Context, req perplexity.SearchRequest) (perplexity.StepRecord, error)
}

// MenuContexter renders the current menu for prompt assembly.
type MenuContexter interface {
	Context() string
}

type Agent struct {
	client   Searcher
	menu     MenuContexter
	language string
	// useProMode is flipped off for the rest of the session once the
	// elevated budget runs dry, so every later question still gets answered.
	useProMode bool
}

func New(client Searcher, menu MenuContexter, language string) *Agent {
	if language == "" {
		language = "en-US"
	}
	return &Agent{
		client:     client,
		menu:       menu,
		language:   language,
		useProMode: true,
	}
}

const systemInstruction = `You are a friendly assistant for the Warung22 restaurant.
Answer questions about the menu below. Only use the menu data, do not invent items.
Prices are in EGP. If something is not on the menu, say so.`

func (a *Agent) buildPrompt(question string) string {
	var b strings.Builder
	b.WriteString("SYSTEM INSTRUCTION:\n")
	b.WriteString(systemInstruction)
	b.WriteString("\n\nMENU:\n")
	b.WriteString(a.menu.Context())
	b.WriteString("\nUSER QUERY:\n")
	b.WriteString(question)
	return b.String()
}

// Ask answers one question. It prefers the elevated pro mode and downgrades
// permanently to auto for this session once the budget is exhausted.
func (a *Agent) Ask(ctx context.Context, question string) (string, error) {
	prompt := a.buildPrompt(question)

	if a.useProMode {
		rec, err := a.client.Search(ctx, perplexity.SearchRequest{
			Query:     prompt,
			Mode:      perplexity.ModePro,
			Model:     "grok-4",
			Sources:   []perplexity.Source{perplexity.SourceWeb},
			Language:  a.language,
			Incognito: true,
		})
		var qErr perplexity.QuotaError
		switch {
		case err == nil:
			return ExtractAnswer(rec)
		case errors.As(err, &qErr):
			ancli.Warnf("elevated quota exhausted, using auto mode from now on: %v\n", err)
			a.useProMode = false
		default:
			return "", fmt.Errorf("failed to query answer engine: %w", err)
		}
	}

	rec, err := a.client.Search(ctx, perplexity.SearchRequest{
		Query:     prompt,
		Mode:      perplexity.ModeAuto,
		Sources:   []perplexity.Source{perplexity.SourceWeb},
		Language:  a.language,
		Incognito: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to query answer engine: %w", err)
	}
	return ExtractAnswer(rec)
}

// ExtractAnswer digs the final answer text out of a step record. The text
// field may be a plain string, a list of steps whose FINAL entry carries the
// answer, or a nested JSON-encoded answer object.
func ExtractAnswer(rec perplexity.StepRecord) (string, error) {
	if len(rec) == 0 {
		return "", errors.New("empty response from answer engine")
	}
	text, ok := rec["text"]
	if !ok {
		return "", fmt.Errorf("response has no text field, keys: %v", keysOf(rec))
	}

	switch t := text.(type) {
	case string:
		return t, nil
	case []any:
		if final := findFinalStep(t); final != nil {
			return answerFromContent(final["content"]), nil
		}
		if len(t) == 0 {
			return "", errors.New("response contained no steps")
		}
		last, ok := t[len(t)-1].(map[string]any)
		if !ok {
			return fmt.Sprint(t[len(t)-1]), nil
		}
		return answerFromContent(last["content"]), nil
	case map[string]any:
		return answerFromContent(t), nil
	default:
		return "", fmt.Errorf("unrecognized text payload of type %T", text)
	}
}

func findFinalStep(steps []any) map[string]any {
	for _, raw := range steps {
		step, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if stepType, _ := step["step_type"].(string); stepType == "FINAL" {
			return step
		}
	}
	return nil
}

// answerFromContent unwraps content.answer, which itself may be a string, a
// JSON-encoded object with an answer field, or a plain object.
func answerFromContent(content any) string {
	m, ok := content.(map[string]any)
	if !ok {
		return fmt.Sprint(content)
	}
	answer, ok := m["answer"]
	if !ok {
		return fmt.Sprint(m)
	}
	switch a := answer.(type) {
	case string:
		if inner, ok := decodeAnswerJSON(a); ok {
			return inner
		}
		return a
	case map[string]any:
		if inner, ok := a["answer"].(string); ok {
			return inner
		}
		return fmt.Sprint(a)
	default:
		return fmt.Sprint(a)
	}
}
