package risk

import (
	"fmt"
	"strings"

	"teamassist/internal/models"
)

// Context carries the session state a classification is judged against. Role
// aliases are collapsed before evaluation: project managers are employees
// here.
type Context struct {
	Role      models.Role
	ProjectID string
	ChatID    string
	TechStack []string
}

// Classify grades the behavioral risk of one utterance. It is deterministic,
// side-effect-free, and cannot fail: pattern tables are fixed at init and
// every input maps to exactly one decision.
//
// Categories are evaluated in strict priority order, first match wins:
// destructive, privilege escalation, PII exposure, prompt injection,
// technology-stack mismatch. A privileged role matching a category it is
// exempt from skips that category and keeps evaluating the lower-priority
// ones.
func Classify(text string, rctx Context) models.RiskDecision {
	if strings.TrimSpace(text) == "" {
		return allowDecision()
	}

	q := strings.ToLower(strings.TrimSpace(text))
	role := rctx.Role.RiskRole()
	privileged := role.Privileged()

	if name, ok := matchGroups(destructivePatterns, q); ok {
		if privileged {
			return models.RiskDecision{
				Category:       models.RiskDestructive,
				Severity:       models.SeverityMedium,
				Action:         models.ActionConfirm,
				MatchedPattern: name,
				Message: fmt.Sprintf(
					"Destructive operation detected. As %s you have permission for this operation. "+
						"Warning: this involves permanent deletion. Please confirm to proceed.", role),
			}
		}
		return models.RiskDecision{
			Category:       models.RiskDestructive,
			Severity:       models.SeverityHigh,
			Action:         models.ActionRefuse,
			MatchedPattern: name,
			Message: "Access denied. This action involves permanent deletion and requires " +
				"administrative privileges. Your role does not permit destructive operations; " +
				"please contact your manager or admin.",
		}
	}

	if name, ok := matchGroups(privilegeEscalationPatterns, q); ok && !privileged {
		return models.RiskDecision{
			Category:       models.RiskPrivilegeEscalation,
			Severity:       models.SeverityHigh,
			Action:         models.ActionRefuse,
			MatchedPattern: name,
			Message: "Access denied. Access control modifications require administrative " +
				"privileges. Your role does not permit changing permissions or roles; " +
				"please contact your manager or admin.",
		}
	}

	if name, ok := matchGroups(piiPatterns, q); ok {
		switch {
		case role == models.RoleAdmin || role == models.RoleHR:
			// Full PII access; fall through to lower-priority checks.
		case role == models.RoleManager:
			if strings.Contains(q, "all") || strings.Contains(q, "everyone") {
				return models.RiskDecision{
					Category:       models.RiskPII,
					Severity:       models.SeverityMedium,
					Action:         models.ActionConfirm,
					MatchedPattern: name,
					Message: "This request involves personally identifiable information in bulk. " +
						"As manager you have access to PII data; please confirm you are authorized " +
						"for this request.",
				}
			}
			// Specific PII lookups are fine for managers.
		default:
			return models.RiskDecision{
				Category:       models.RiskPII,
				Severity:       models.SeverityHigh,
				Action:         models.ActionRefuse,
				MatchedPattern: name,
				Message: "Access denied. This request involves personally identifiable " +
					"information. Your role does not permit access to PII data; please contact " +
					"your manager or HR.",
			}
		}
	}

	// No role is exempt from prompt injection.
	if name, ok := matchGroups(promptInjectionPatterns, q); ok {
		return models.RiskDecision{
			Category:       models.RiskPromptInjection,
			Severity:       models.SeverityHigh,
			Action:         models.ActionRefuse,
			MatchedPattern: name,
			Message: "I cannot modify my core instructions or reveal system prompts. " +
				"This restriction applies to every user. How can I help you with a work task?",
		}
	}

	if len(rctx.TechStack) > 0 && !privileged {
		if tech, ok := mismatchedTechnology(q, rctx.TechStack); ok {
			return models.RiskDecision{
				Category:       models.RiskTechStackMismatch,
				Severity:       models.SeverityMedium,
				Action:         models.ActionConfirm,
				MatchedPattern: "technology_" + tech,
				Message: fmt.Sprintf(
					"Technology stack mismatch: you asked about %s, which is not part of this "+
						"project's stack (%s). Do you want to continue?",
					strings.ToUpper(tech), strings.Join(rctx.TechStack, ", ")),
			}
		}
	}

	return allowDecision()
}

func allowDecision() models.RiskDecision {
	return models.RiskDecision{
		Category:       models.RiskNone,
		Severity:       models.SeverityLow,
		Action:         models.ActionAllow,
		MatchedPattern: "none",
	}
}

// mismatchedTechnology reports the first technology named in the query that
// the project's declared stack does not cover, by case-insensitive substring
// in either direction.
func mismatchedTechnology(q string, stack []string) (string, bool) {
	lowered := make([]string, len(stack))
	for i, s := range stack {
		lowered[i] = strings.ToLower(s)
	}
	for _, tech := range technologyKeywords {
		for _, keyword := range tech.keywords {
			if !strings.Contains(q, keyword) {
				continue
			}
			inStack := false
			for _, item := range lowered {
				if strings.Contains(item, keyword) || strings.Contains(keyword, item) {
					inStack = true
					break
				}
			}
			if !inStack {
				return tech.name, true
			}
		}
	}
	return "", false
}
