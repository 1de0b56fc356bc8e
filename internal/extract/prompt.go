// Package extract builds the fact-extraction prompt sent to every agent and
// parses the agents' replies into facts, citations and a confidence score.
package extract

import (
	"fmt"
	"strings"
)

// SystemPrompt frames the agent as a careful extractor
const SystemPrompt = `You extract verifiable factual claims from a source document.
Only state facts the document itself supports. Never add outside knowledge.
Reply with a single JSON object and nothing else.`

const instructions = `Extract the factual claims made in the SOURCE below.

Return JSON in exactly this shape:
{
  "facts": ["<one self-contained factual claim>", ...],
  "citations": [
    {"start": <int>, "end": <int>, "text": "<exact source text>", "supportsFact": "<the fact it supports>"}
  ],
  "confidence": <number between 0 and 1>
}

Rules:
- Each fact is one short declarative sentence. Keep numbers exactly as written.
- "start" and "end" are character offsets into SOURCE, counted in Unicode characters from 0; "end" is exclusive.
- "text" must be copied verbatim from SOURCE between start and end.
- "supportsFact" must repeat one of your facts word for word.
- "confidence" is how sure you are that every fact is supported by SOURCE.`

// Prompt is a system/user prompt pair
type Prompt struct {
	System string
	User   string
}

// BuildPrompt returns the extraction prompt for a source document and an
// optional topical hint
func BuildPrompt(source, hint string) Prompt {
	var b strings.Builder
	b.WriteString(instructions)
	if h := strings.TrimSpace(hint); h != "" {
		fmt.Fprintf(&b, "\n\nFocus on claims about: %s", h)
	}
	fmt.Fprintf(&b, "\n\nSOURCE (%d characters):\n<<<\n%s\n>>>", len([]rune(source)), source)

	return Prompt{
		System: SystemPrompt,
		User:   b.String(),
	}
}
