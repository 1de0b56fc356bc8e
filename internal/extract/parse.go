package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ppiankov/concord/internal/model"
)

// DefaultConfidence is used when a reply has no usable confidence
const DefaultConfidence = 0.5

// Parse methods, in priority order
const (
	MethodRaw    = "raw"
	MethodFenced = "fenced"
	MethodScan   = "scan"
)

// Parsed is a successfully decoded agent reply
type Parsed struct {
	Facts            []string
	Citations        []model.Citation
	Confidence       float64
	Method           string
	DroppedFacts     int // Non-string entries in facts
	DroppedCitations int // Citations with missing or mistyped fields
}

// ParseError reports a reply that holds no extraction object
type ParseError struct {
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse extraction: %s (reply starts %q)", e.Reason, e.Snippet)
}

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// Parse decodes an agent reply. It tries the reply as raw JSON, then any
// fenced code block, then every balanced {...} substring mentioning "facts".
func Parse(raw string) (*Parsed, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ParseError{Reason: "empty reply"}
	}

	if p, ok := decode(trimmed); ok {
		p.Method = MethodRaw
		return p, nil
	}

	for _, m := range fencePattern.FindAllStringSubmatch(trimmed, -1) {
		if p, ok := decode(strings.TrimSpace(m[1])); ok {
			p.Method = MethodFenced
			return p, nil
		}
	}

	for _, candidate := range objectCandidates(trimmed) {
		if !strings.Contains(candidate, `"facts"`) {
			continue
		}
		if p, ok := decode(candidate); ok {
			p.Method = MethodScan
			return p, nil
		}
	}

	return nil, &ParseError{Reason: "no JSON object with facts found", Snippet: snippet(trimmed)}
}

// ToExtraction converts a parsed reply into the agent's extraction record
func (p *Parsed) ToExtraction(agentID string) model.FactExtraction {
	return model.FactExtraction{
		AgentID:    agentID,
		Facts:      p.Facts,
		Citations:  p.Citations,
		Confidence: p.Confidence,
	}
}

type rawCitation struct {
	Start        json.RawMessage `json:"start"`
	End          json.RawMessage `json:"end"`
	Text         json.RawMessage `json:"text"`
	SupportsFact json.RawMessage `json:"supportsFact"`
}

// decode validates one candidate object. A candidate without a facts key is
// not an extraction.
func decode(s string) (*Parsed, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	rawFacts, ok := obj["facts"]
	if !ok {
		return nil, false
	}

	p := &Parsed{
		Facts:      []string{},
		Citations:  []model.Citation{},
		Confidence: confidence(obj["confidence"]),
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawFacts, &items); err == nil {
		for _, item := range items {
			var f string
			if err := json.Unmarshal(item, &f); err != nil || strings.TrimSpace(f) == "" {
				p.DroppedFacts++
				continue
			}
			p.Facts = append(p.Facts, f)
		}
	}

	var cites []json.RawMessage
	if err := json.Unmarshal(obj["citations"], &cites); err == nil {
		for _, item := range cites {
			c, ok := citation(item)
			if !ok {
				p.DroppedCitations++
				continue
			}
			p.Citations = append(p.Citations, c)
		}
	}

	return p, true
}

func citation(raw json.RawMessage) (model.Citation, bool) {
	var rc rawCitation
	if err := json.Unmarshal(raw, &rc); err != nil {
		return model.Citation{}, false
	}

	start, ok1 := integer(rc.Start)
	end, ok2 := integer(rc.End)
	var text, supports string
	ok3 := !isNull(rc.Text) && json.Unmarshal(rc.Text, &text) == nil
	ok4 := !isNull(rc.SupportsFact) && json.Unmarshal(rc.SupportsFact, &supports) == nil
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return model.Citation{}, false
	}

	return model.Citation{Start: start, End: end, Text: text, SupportsFact: supports}, true
}

// integer accepts JSON numbers with no fractional part
func integer(raw json.RawMessage) (int, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func confidence(raw json.RawMessage) float64 {
	var f float64
	if isNull(raw) || json.Unmarshal(raw, &f) != nil || math.IsNaN(f) {
		return DefaultConfidence
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// objectCandidates returns every balanced {...} substring, outermost first,
// honoring JSON string quoting
func objectCandidates(s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if end := matchBrace(s, i); end > 0 {
			out = append(out, s[i:end+1])
		}
	}
	return out
}

func matchBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isNull(raw json.RawMessage) bool {
	return raw == nil || strings.TrimSpace(string(raw)) == "null"
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return s
}
