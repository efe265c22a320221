package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/synapse/internal/domain"
)

const continuationPrompt = `%s

Reasoning so far:
%s

Propose up to %d distinct next step(s) for this line of reasoning. Each step is one or two sentences.
For each step give:
- content: the step itself
- likelihood: a number between 0 and 1, how likely this step leads to a correct answer
- final: true if this step completes the reasoning

Respond ONLY with a JSON array. No markdown, no explanation. Example:
[{"content":"The user wants the capital of France, which is a geography fact.","likelihood":0.9,"final":true}]`

const answerPrompt = `%s

Reasoning so far:
%s

Write the final answer for the user in plain text, in a few sentences.
Do not return JSON and do not repeat the reasoning steps.`

// answerTemperature keeps final answers close to the consolidated knowledge.
const answerTemperature = 0.2

func buildContinuationPrompt(prompt string, prior []domain.ReasoningStep, maxAlternatives int) string {
	if maxAlternatives < 1 {
		maxAlternatives = 1
	}
	return fmt.Sprintf(continuationPrompt, prompt, formatSteps(prior), maxAlternatives)
}

func buildAnswerPrompt(prompt string, steps []domain.ReasoningStep) string {
	return fmt.Sprintf(answerPrompt, prompt, formatSteps(steps))
}

func formatSteps(steps []domain.ReasoningStep) string {
	if len(steps) == 0 {
		return "(none yet)"
	}
	var sb strings.Builder
	for i, step := range steps {
		sb.WriteString(fmt.Sprintf("%d. %s (likelihood %.2f)\n", i+1, step.Content, step.Likelihood))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// parseContinuations accepts the JSON array the prompt asks for. A reply that
// is plain text is treated as a single final step.
func parseContinuations(raw string, maxAlternatives int) ([]domain.Continuation, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if raw == "" {
		return nil, nil
	}

	var out []domain.Continuation
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("parse continuations: %w (raw: %s)", err, raw)
		}
	} else {
		out = []domain.Continuation{{Content: raw, Likelihood: 0.5, Final: true}}
	}

	kept := out[:0]
	for _, c := range out {
		c.Content = strings.TrimSpace(c.Content)
		if c.Content == "" {
			continue
		}
		c.Likelihood = domain.ClampUnit(c.Likelihood)
		kept = append(kept, c)
	}
	if maxAlternatives > 0 && len(kept) > maxAlternatives {
		kept = kept[:maxAlternatives]
	}
	return kept, nil
}

// temperatureFor widens sampling when several alternatives are wanted.
func temperatureFor(maxAlternatives int) float32 {
	if maxAlternatives > 1 {
		return 0.8
	}
	return 0.2
}
