package models

import "time"

// RiskCategory labels the kind of behavioral risk detected in a message.
type RiskCategory string

const (
	RiskDestructive         RiskCategory = "destructive"
	RiskPrivilegeEscalation RiskCategory = "privilege_escalation"
	RiskPII                 RiskCategory = "pii_risk"
	RiskPromptInjection     RiskCategory = "prompt_injection"
	RiskTechStackMismatch   RiskCategory = "tech_stack_mismatch"
	RiskNone                RiskCategory = "none"
)

// RiskSeverity grades a detected risk.
type RiskSeverity string

const (
	SeverityLow    RiskSeverity = "low"
	SeverityMedium RiskSeverity = "medium"
	SeverityHigh   RiskSeverity = "high"
)

// RiskAction is the classifier's verdict for a (text, context) pair.
type RiskAction string

const (
	ActionAllow   RiskAction = "allow"
	ActionConfirm RiskAction = "confirm"
	ActionRefuse  RiskAction = "refuse"
)

// RiskDecision is the transient result of one classification. It is not
// persisted itself; every decision is mirrored into a RiskLog row.
type RiskDecision struct {
	Category       RiskCategory `json:"category"`
	Severity       RiskSeverity `json:"severity"`
	Action         RiskAction   `json:"action"`
	MatchedPattern string       `json:"matched_pattern"`
	Message        string       `json:"message"`
}

// RiskLog is the append-only audit record written for every evaluation,
// including plain allows.
type RiskLog struct {
	ID             int64        `json:"id"`
	UserEmail      string       `json:"user_email"`
	Query          string       `json:"query"`
	Category       RiskCategory `json:"category"`
	Severity       RiskSeverity `json:"severity"`
	Action         RiskAction   `json:"action"`
	ProjectID      string       `json:"project_id"`
	ChatID         string       `json:"chat_id"`
	MatchedPattern string       `json:"matched_pattern"`
	CreatedAt      time.Time    `json:"created_at"`
}
