package service

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/synapse/internal/domain"
)

const reasoningPromptTemplate = `You are the reasoning core of a personal knowledge assistant.
Work out, one step at a time, what the user is asking and which knowledge is needed to answer it.

Memory available: %s

Question: %s`

const answerPromptTemplate = `Answer the user's question using only the consolidated knowledge below.
If the knowledge is insufficient, say so plainly.

Question: %s

Consolidated knowledge (confidence %.2f):
%s`

func reasoningPrompt(query string, cc domain.CognitiveContext) string {
	return fmt.Sprintf(reasoningPromptTemplate, describeSnapshot(cc.Memory), query)
}

func answerPrompt(query string, c domain.ConsolidationResult) string {
	summary := c.Summary
	if summary == "" {
		summary = "(nothing relevant was found in memory)"
	}
	return fmt.Sprintf(answerPromptTemplate, query, c.Confidence, summary)
}

func describeSnapshot(s domain.MemorySnapshot) string {
	if len(s.LayerCounts) == 0 {
		return "unknown"
	}
	parts := make([]string, 0, len(domain.AllLayers)+1)
	for _, layer := range domain.AllLayers {
		parts = append(parts, fmt.Sprintf("%s=%d", layer, s.LayerCounts[layer]))
	}
	parts = append(parts, fmt.Sprintf("working_set=%d load=%.2f", s.WorkingSetSize, s.LoadFactor))
	return strings.Join(parts, " ")
}
