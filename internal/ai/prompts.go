package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Prompt templates
// ---------------------------------------------------------------------------

const hierarchySystem = `You are a precise technical summarizer.
Given raw text, extract bullet points and group them into a strict 3-layer hierarchy:
- layer1 = main topics (broad, non-overlapping)
- layer2 = subtopics
- layer3 = sub-subtopics

Rules:
- Exhaust all content; never drop details. If a point fits nowhere, create a new topic.
- Each item SHORT (<= 12 words), noun-phrase style.
- No explanations, just labels.
- Deduplicate/merge near-duplicates.
- Output strictly JSON with keys: layer1, layer2, layer3 (arrays of strings).`

const hierarchyShape = `Return JSON with exactly:
{
  "layer1": [...],
  "layer2": [...],
  "layer3": [...]
}`

// ChunkPrompt asks for the hierarchy of a single chunk of text.
func ChunkPrompt(chunk string) []Message {
	user := fmt.Sprintf("Text chunk:\n```\n%s\n```\n\n%s", chunk, hierarchyShape)
	return BuildConversation(hierarchySystem, Message{Role: RoleUser, Content: user})
}

// MergePrompt asks the model to fold partial hierarchies into one. Each
// partial is rendered as one JSON object per line.
func MergePrompt(partials []Hierarchy) []Message {
	lines := make([]string, 0, len(partials))
	for _, p := range partials {
		b, err := json.Marshal(p)
		if err != nil {
			continue
		}
		lines = append(lines, string(b))
	}

	var user strings.Builder
	user.WriteString("Merge multiple partial hierarchies into a single consistent set.\n\n")
	user.WriteString("Guidelines:\n")
	user.WriteString("- Deduplicate by meaning (\"Hiring\" vs \"Recruiting\" -> pick one).\n")
	user.WriteString("- If too specific for layer1, demote to layer2 or layer3.\n")
	user.WriteString("- Keep layers balanced and exhaustive.\n")
	user.WriteString("- Items concise.\n\n")
	user.WriteString("Partials (one JSON object per line):\n")
	user.WriteString(strings.Join(lines, "\n"))
	user.WriteString("\n\n")
	user.WriteString(hierarchyShape)

	return BuildConversation(hierarchySystem, Message{Role: RoleUser, Content: user.String()})
}
