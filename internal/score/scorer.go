// Package score grades a validation result and explains the grade with
// diagnostic signals. It never changes the result's confidence.
package score

import (
	"fmt"

	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/recovery"
)

// Scorer generates diagnostic signals for validation results
type Scorer struct {
	minAgents int
}

// NewScorer creates a scorer for the given quorum size
func NewScorer(minAgents int) *Scorer {
	if minAgents < 1 {
		minAgents = 1
	}
	return &Scorer{minAgents: minAgents}
}

// Assess grades a validation result
func (s *Scorer) Assess(r *model.SourceValidationResult) model.Assessment {
	var signals []model.Signal

	// 1. Agent participation
	signals = append(signals, s.participation(r))

	// 2. Fact agreement
	signals = append(signals, s.agreement(r.FactConsensus))

	// 3. Citation grounding
	signals = append(signals, s.grounding(r.Extractions))

	// 4. Discrepancies (only when present)
	if len(r.Discrepancies) > 0 {
		signals = append(signals, s.discrepancies(r.Discrepancies))
	}

	// 5. Recovery (only when the quorum was not met)
	if r.Recovery != nil {
		signals = append(signals, s.recovery(r.Recovery))
	}

	return model.Assessment{
		Level:   s.determineLevel(r.ValidationConfidence, signals, len(r.Discrepancies)),
		Signals: signals,
	}
}

func (s *Scorer) participation(r *model.SourceValidationResult) model.Signal {
	total := len(r.Extractions)
	ok := r.SuccessfulAgents()

	severity := model.SeverityInfo
	if ok == 0 {
		severity = model.SeverityCritical
	} else if ok < s.minAgents || ok < total {
		severity = model.SeverityWarning
	}

	var failed []string
	for _, e := range r.Extractions {
		if e.Failed() {
			failed = append(failed, e.AgentID)
		}
	}

	data := map[string]interface{}{
		"successful": ok,
		"total":      total,
		"required":   s.minAgents,
	}
	if len(failed) > 0 {
		data["failed"] = failed
	}

	return model.Signal{
		Type:        model.SignalParticipation,
		Severity:    severity,
		Description: fmt.Sprintf("%d of %d agents produced an extraction", ok, total),
		Data:        data,
	}
}

func (s *Scorer) agreement(c model.ExtractionConsensus) model.Signal {
	total := c.Total()
	if total == 0 {
		return model.Signal{
			Type:        model.SignalAgreement,
			Severity:    model.SeverityCritical,
			Description: "No facts extracted",
			Data:        map[string]interface{}{"facts": 0},
		}
	}

	ratio := float64(len(c.AgreedFacts)) / float64(total)

	severity := model.SeverityInfo
	if ratio < 0.25 {
		severity = model.SeverityCritical
	} else if ratio < 0.5 {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalAgreement,
		Severity:    severity,
		Description: fmt.Sprintf("%d of %d facts agreed by every agent", len(c.AgreedFacts), total),
		Data: map[string]interface{}{
			"agreed":    len(c.AgreedFacts),
			"partial":   len(c.PartialAgreementFacts),
			"disagreed": len(c.DisagreedFacts),
			"ratio":     ratio,
		},
	}
}

func (s *Scorer) grounding(extractions []model.FactExtraction) model.Signal {
	kept, dropped := 0, 0
	for _, e := range extractions {
		kept += len(e.Citations)
		dropped += e.CitationsDropped
	}

	severity := model.SeverityInfo
	desc := fmt.Sprintf("%d citations verified against the source", kept)
	switch {
	case kept == 0:
		severity = model.SeverityWarning
		desc = "No citation could be verified against the source"
	case dropped > kept:
		severity = model.SeverityWarning
		desc = fmt.Sprintf("%d citations verified, %d rejected", kept, dropped)
	case dropped > 0:
		desc = fmt.Sprintf("%d citations verified, %d rejected", kept, dropped)
	}

	return model.Signal{
		Type:        model.SignalGrounding,
		Severity:    severity,
		Description: desc,
		Data: map[string]interface{}{
			"verified": kept,
			"rejected": dropped,
		},
	}
}

func (s *Scorer) discrepancies(d []model.SourceDiscrepancy) model.Signal {
	sections := make([]string, 0, len(d))
	for _, x := range d {
		sections = append(sections, x.SourceSection)
	}
	return model.Signal{
		Type:        model.SignalDiscrepancy,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("Agents contradict each other in %d place(s)", len(d)),
		Data: map[string]interface{}{
			"count":    len(d),
			"sections": sections,
		},
	}
}

func (s *Scorer) recovery(res *model.Resolution) model.Signal {
	severity := model.SeverityWarning
	if res.Action != string(recovery.ResolveNotifyPartial) {
		severity = model.SeverityCritical
	}
	return model.Signal{
		Type:        model.SignalRecovery,
		Severity:    severity,
		Description: res.Message,
		Data: map[string]interface{}{
			"reason": res.Reason,
			"action": res.Action,
		},
	}
}

// determineLevel maps confidence and signals to high, medium or low
func (s *Scorer) determineLevel(confidence float64, signals []model.Signal, discrepancies int) string {
	for _, sig := range signals {
		if sig.Severity == model.SeverityCritical {
			return "low"
		}
	}

	if confidence >= 0.75 && discrepancies == 0 {
		return "high"
	} else if confidence >= 0.4 {
		return "medium"
	} else {
		return "low"
	}
}
