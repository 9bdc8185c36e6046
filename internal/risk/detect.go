package risk

import (
	"context"

	"teamassist/internal/models"
)

// Payload is what DetectAndHandle hands back when a message cannot proceed
// as-is, and the audit trail for the allowed case.
type Payload struct {
	Reply                string              `json:"reply,omitempty"`
	Category             models.RiskCategory `json:"risk_category,omitempty"`
	Severity             models.RiskSeverity `json:"severity,omitempty"`
	Action               models.RiskAction   `json:"action,omitempty"`
	RequiresConfirmation bool                `json:"requires_confirmation,omitempty"`
}

// DetectAndHandle classifies a message, audits the decision (always, even for
// plain allows), and maps the verdict onto the caller's control flow:
// refuse and confirm both report unsafe, confirm additionally sets the
// confirmation flag, allow reports safe with an empty payload. The function
// holds no state between calls; confirmation follow-through belongs to the
// caller.
func DetectAndHandle(ctx context.Context, text string, identity models.UserIdentity, rctx Context, logger Logger) (bool, Payload) {
	rctx.Role = identity.Role
	decision := Classify(text, rctx)
	logDecision(ctx, logger, identity.Email, text, rctx, decision)

	switch decision.Action {
	case models.ActionRefuse:
		return false, Payload{
			Reply:    decision.Message,
			Category: decision.Category,
			Severity: decision.Severity,
			Action:   models.ActionRefuse,
		}
	case models.ActionConfirm:
		return false, Payload{
			Reply:                decision.Message,
			Category:             decision.Category,
			Severity:             decision.Severity,
			Action:               models.ActionConfirm,
			RequiresConfirmation: true,
		}
	default:
		return true, Payload{}
	}
}
