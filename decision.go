package main

// DecisionWeights combine the AI confidence with label-match and
// historical-success signals. These are policy defaults, not measured
// values, so they stay configurable.
type DecisionWeights struct {
	AI      float64
	Label   float64
	History float64
}

// DecisionThresholds route a combined confidence to an action. Boundary
// values route to the higher tier.
type DecisionThresholds struct {
	AutoAssign float64
	Review     float64
}

func DefaultWeights() DecisionWeights {
	return DecisionWeights{AI: 0.7, Label: 0.2, History: 0.1}
}

func DefaultThresholds() DecisionThresholds {
	return DecisionThresholds{AutoAssign: 0.8, Review: 0.6}
}

// RouteAction maps a confidence to an action under the thresholds.
func RouteAction(confidence float64, t DecisionThresholds) AssignmentAction {
	switch {
	case confidence >= t.AutoAssign:
		return ActionAutoAssign
	case confidence >= t.Review:
		return ActionRequestReview
	default:
		return ActionRequestClarification
	}
}

// MakeDecision derives the assignment decision for one item. Ambiguous and
// no-match outcomes always request clarification with no workflow chosen;
// the candidate list rides along so the requester sees what almost matched.
// Under an AI classification the confidence is the weighted combination;
// under the rule fallback it degrades to the label-match score alone.
func MakeDecision(match MatchResult, classification ClassificationResult, historyScore float64, w DecisionWeights, t DecisionThresholds) AssignmentDecision {
	decision := AssignmentDecision{
		Classification: classification,
		MatchOutcome:   match.Outcome,
		HistoryScore:   clamp01(historyScore),
	}

	if match.Outcome != MatchSingle {
		decision.Action = ActionRequestClarification
		decision.Candidates = match.Candidates
		return decision
	}

	workflow := match.Workflow
	labelScore := 0.0
	for _, c := range match.Candidates {
		if c.Workflow == workflow {
			labelScore = clamp01(c.Strength)
		}
	}

	var confidence float64
	if classification.Variant == "ai" {
		ai := clamp01(classification.ConfidenceFor(workflow.Slug))
		if ai == 0 {
			ai = clamp01(classification.ConfidenceFor(workflow.Name))
		}
		confidence = w.AI*ai + w.Label*labelScore + w.History*decision.HistoryScore
	} else {
		confidence = labelScore
	}

	decision.Workflow = workflow
	decision.LabelScore = labelScore
	decision.Confidence = clamp01(confidence)
	decision.Action = RouteAction(decision.Confidence, t)
	return decision
}
