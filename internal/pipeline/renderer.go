package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/util"
)

const footer = "_Generated by concord. Agreement between models is not proof of truth; check the cited passages._"

// Renderer writes results as JSON, Markdown and terminal summaries
type Renderer struct {
	includeFooter bool
	includeSource bool
	out           io.Writer
}

// NewRenderer creates a renderer. Summaries go to out (stdout if nil).
func NewRenderer(cfg model.OutputConfig, out io.Writer) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{
		includeFooter: cfg.IncludeFooter,
		includeSource: cfg.IncludeSource,
		out:           out,
	}
}

// RenderJSON writes v as indented JSON, atomically
func (r *Renderer) RenderJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')
	return util.WriteFileAtomic(path, data, 0o644)
}

// RenderMarkdown writes the Markdown report for a validation result
func (r *Renderer) RenderMarkdown(result *model.SourceValidationResult, path string) error {
	return util.WriteFileAtomic(path, []byte(r.Markdown(result)), 0o644)
}

// Markdown renders a validation result as a Markdown report
func (r *Renderer) Markdown(result *model.SourceValidationResult) string {
	var b strings.Builder

	title := result.SourceTitle
	if title == "" {
		title = "Source validation"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if result.SourceRef != "" {
		fmt.Fprintf(&b, "- **Source:** %s\n", result.SourceRef)
	}
	if result.Hint != "" {
		fmt.Fprintf(&b, "- **Focus:** %s\n", result.Hint)
	}
	fmt.Fprintf(&b, "- **Run:** `%s` at %s\n", result.RunID, result.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- **Agents:** %d of %d succeeded\n", result.SuccessfulAgents(), len(result.Extractions))
	fmt.Fprintf(&b, "- **Validation confidence:** %.0f%%", result.ValidationConfidence*100)
	if result.Assessment != nil {
		fmt.Fprintf(&b, " (%s)", result.Assessment.Level)
	}
	b.WriteString("\n")
	if result.Cached {
		b.WriteString("- **Cached:** yes\n")
	}
	b.WriteString("\n")

	if result.Recovery != nil {
		fmt.Fprintf(&b, "> **Degraded result** (%s, %s): %s\n\n",
			result.Recovery.Reason, result.Recovery.Action, result.Recovery.Message)
	}

	c := result.FactConsensus

	b.WriteString("## Agreed facts\n\n")
	if len(c.AgreedFacts) == 0 {
		b.WriteString("_None._\n")
	}
	for _, f := range c.AgreedFacts {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\n")

	if len(c.PartialAgreementFacts) > 0 {
		b.WriteString("## Partial agreement\n\n")
		b.WriteString("| Fact | Agreement | Agreeing | Disagreeing |\n")
		b.WriteString("|------|-----------|----------|-------------|\n")
		for _, f := range c.PartialAgreementFacts {
			fmt.Fprintf(&b, "| %s | %.0f%% | %s | %s |\n",
				escapeCell(f.Fact), f.AgreementPercentage,
				strings.Join(f.AgreeingAgents, ", "), strings.Join(f.DisagreeingAgents, ", "))
		}
		b.WriteString("\n")
	}

	if len(c.DisagreedFacts) > 0 {
		b.WriteString("## Single-agent facts\n\n")
		for _, f := range c.DisagreedFacts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	if len(result.Discrepancies) > 0 {
		b.WriteString("## Discrepancies\n\n")
		for _, d := range result.Discrepancies {
			fmt.Fprintf(&b, "### %s\n\n", d.Description)
			fmt.Fprintf(&b, "- **Section:** %s\n", d.SourceSection)
			fmt.Fprintf(&b, "- **Agents:** %s\n", strings.Join(d.AgentsInvolved, ", "))
			for _, in := range d.ConflictingInterpretations {
				fmt.Fprintf(&b, "  - %s\n", in)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Agents\n\n")
	b.WriteString("| Agent | Facts | Citations | Rejected | Confidence | Attempts | Error |\n")
	b.WriteString("|-------|-------|-----------|----------|------------|----------|-------|\n")
	for _, e := range result.Extractions {
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %.2f | %d | %s |\n",
			e.AgentID, len(e.Facts), len(e.Citations), e.CitationsDropped,
			e.Confidence, e.Attempts, escapeCell(e.Error))
	}
	b.WriteString("\n")

	if result.Assessment != nil && len(result.Assessment.Signals) > 0 {
		b.WriteString("## Signals\n\n")
		for _, s := range result.Assessment.Signals {
			fmt.Fprintf(&b, "- %s **%s**: %s\n", severityMark(s.Severity), s.Type, s.Description)
		}
		b.WriteString("\n")
	}

	if r.includeSource {
		b.WriteString("## Source\n\n```text\n")
		b.WriteString(result.SourceContent)
		if !strings.HasSuffix(result.SourceContent, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString(footer)
		b.WriteString("\n")
	}

	return b.String()
}

// CouncilMarkdown renders a council result as Markdown
func (r *Renderer) CouncilMarkdown(result *model.CouncilResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Council\n\n> %s\n\n", result.Prompt)
	fmt.Fprintf(&b, "**Selected:** %s (agreement %.0f%%)\n\n", result.Selected, result.Agreement*100)
	b.WriteString(result.Answer)
	b.WriteString("\n\n## Answers\n\n")
	for _, a := range result.Answers {
		if !a.Success {
			fmt.Fprintf(&b, "### %s (failed)\n\n%s\n\n", a.AgentID, a.Error)
			continue
		}
		fmt.Fprintf(&b, "### %s (%.0f%%)\n\n%s\n\n", a.AgentID, a.Similarity*100, a.Text)
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString(footer)
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSummary prints a short validation summary
func (r *Renderer) RenderSummary(result *model.SourceValidationResult) {
	w := r.out
	label := result.SourceRef
	if result.SourceTitle != "" {
		label = result.SourceTitle
	}
	if label == "" {
		label = "inline source"
	}

	fmt.Fprintf(w, "\n%s\n", label)
	fmt.Fprintf(w, "  Confidence:    %.0f%%", result.ValidationConfidence*100)
	if result.Assessment != nil {
		fmt.Fprintf(w, " (%s)", result.Assessment.Level)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Agents:        %d/%d succeeded\n", result.SuccessfulAgents(), len(result.Extractions))
	fmt.Fprintf(w, "  Agreed:        %d\n", len(result.FactConsensus.AgreedFacts))
	fmt.Fprintf(w, "  Partial:       %d\n", len(result.FactConsensus.PartialAgreementFacts))
	fmt.Fprintf(w, "  Single-agent:  %d\n", len(result.FactConsensus.DisagreedFacts))
	fmt.Fprintf(w, "  Discrepancies: %d\n", len(result.Discrepancies))
	if result.Recovery != nil {
		fmt.Fprintf(w, "  ⚠ %s\n", result.Recovery.Message)
	}
	if result.Cached {
		fmt.Fprintln(w, "  (cached)")
	}
}

// RenderCouncilSummary prints the selected council answer
func (r *Renderer) RenderCouncilSummary(result *model.CouncilResult) {
	fmt.Fprintf(r.out, "\nSelected %s (agreement %.0f%%)\n\n%s\n", result.Selected, result.Agreement*100, result.Answer)
	for _, a := range result.Answers {
		if !a.Success {
			fmt.Fprintf(r.out, "  ✗ %s: %s\n", a.AgentID, a.Error)
		}
	}
}

func severityMark(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "✗"
	case model.SeverityWarning:
		return "⚠"
	default:
		return "✓"
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// RenderReport writes the requested report files and prints the summary
func (p *Pipeline) RenderReport(result *model.SourceValidationResult, jsonPath string, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(result, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(p.renderer.out, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(result, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(p.renderer.out, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	p.renderer.RenderSummary(result)
	return nil
}

// RenderCouncil writes the council result files and prints the selected answer
func (p *Pipeline) RenderCouncil(result *model.CouncilResult, jsonPath string, mdPath string) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(result, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
	}
	if mdPath != "" {
		if err := util.WriteFileAtomic(mdPath, []byte(p.renderer.CouncilMarkdown(result)), 0o644); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
	}
	p.renderer.RenderCouncilSummary(result)
	return nil
}
