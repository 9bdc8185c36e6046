package models

// ProjectContext is a read-only snapshot of the project a conversation is
// scoped to. It feeds the risk classifier and the visibility policy and is
// never mutated by this core.
type ProjectContext struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	TechStack      []string `json:"tech_stack"`
	LeaderEmail    string   `json:"leader_email"`
	AssignedEmails []string `json:"assigned_emails"`
}
