package query

// searchableColumns lists, per table, the columns that are safe targets for a
// LIKE match: plain text only, never uuid, date, JSON, or array columns.
var searchableColumns = map[string][]string{
	"projects": {
		"project_name", "project_description", "status", "client_name",
		"project_scope", "leader_of_project",
	},
	"user_perms":      {"name", "email", "role"},
	"user_memories":   {"role", "content"},
	"episodic_memory": {"summary"},
}

// TextColumns returns the allow-listed text columns for a table.
func TextColumns(table string) []string {
	return searchableColumns[table]
}

// FreeText builds an OR-combined substring match across a table's
// allow-listed text columns. Tables with no allow-listed columns produce the
// unrestricted predicate.
func FreeText(table, text string) Predicate {
	if text == "" {
		return Predicate{}
	}
	pattern := "%" + EscapeLike(text) + "%"
	var preds []Predicate
	for _, col := range TextColumns(table) {
		preds = append(preds, Like(col, pattern))
	}
	return Or(preds...)
}
