package domain

// Decision classifies how a call ended.
type Decision string

const (
	DecisionHandled   Decision = "handled"
	DecisionScheduled Decision = "scheduled"
	DecisionEscalated Decision = "escalated"
	DecisionRejected  Decision = "rejected"
)

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionHandled, DecisionScheduled, DecisionEscalated, DecisionRejected:
		return true
	}
	return false
}

// CallOutcome is the classification of a finished call.
type CallOutcome struct {
	Summary       string   `json:"summary"`
	Decision      Decision `json:"decision"`
	DecisionLabel string   `json:"decision_label"`
	Reasoning     string   `json:"reasoning"`
	ActionTaken   string   `json:"action_taken"`
}

// EmptyCallOutcome is the outcome of a call where the caller never spoke.
func EmptyCallOutcome() CallOutcome {
	return CallOutcome{
		Summary:       "Empty call",
		Decision:      DecisionRejected,
		DecisionLabel: "No input",
		Reasoning:     "Caller did not speak.",
		ActionTaken:   "No action.",
	}
}

// FailedAnalysisOutcome is used when the outcome could not be classified.
func FailedAnalysisOutcome(err error) CallOutcome {
	reason := "Error during analysis"
	if err != nil {
		reason = "Error during analysis: " + err.Error()
	}
	return CallOutcome{
		Summary:       "Failed to analyze call",
		Decision:      DecisionHandled,
		DecisionLabel: "Processing Error",
		Reasoning:     reason,
		ActionTaken:   "Logged for review",
	}
}

// Normalize fills defaults for missing fields and maps unknown decisions to handled.
func (o CallOutcome) Normalize() CallOutcome {
	if o.Summary == "" {
		o.Summary = "No summary available"
	}
	if !o.Decision.Valid() {
		o.Decision = DecisionHandled
	}
	if o.DecisionLabel == "" {
		o.DecisionLabel = "Call processed"
	}
	if o.Reasoning == "" {
		o.Reasoning = "No reasoning provided"
	}
	if o.ActionTaken == "" {
		o.ActionTaken = "Call logged"
	}
	return o
}
