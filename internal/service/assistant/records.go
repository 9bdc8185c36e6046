package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"teamassist/internal/access"
	"teamassist/internal/models"
	"teamassist/internal/query"
	"teamassist/internal/storage"
)

const maxRecordRows = 100

// ErrUnknownTable is returned for tables outside the queryable set.
var ErrUnknownTable = errors.New("unknown table")

// RecordQuery describes one structured lookup against a queryable table.
type RecordQuery struct {
	Table   string         `json:"table"`
	Fields  []string       `json:"fields,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
	Search  string         `json:"search,omitempty"`
	OrderBy string         `json:"order_by,omitempty"`
	Limit   int            `json:"limit,omitempty"`
}

// QueryRecords compiles the filters, layers the caller's visibility rules on
// top, and runs the select. Malformed filter values degrade to whatever the
// compiler makes of them; they never abort the query.
func (s *Service) QueryRecords(ctx context.Context, identity models.UserIdentity, req RecordQuery) ([]map[string]any, error) {
	switch req.Table {
	case access.TableProjects, access.TableIdentity:
	default:
		return nil, ErrUnknownTable
	}

	pred := query.CompileFilters(req.Filters)
	if req.Search != "" {
		pred = query.And(pred, query.FreeText(req.Table, req.Search))
	}
	pred = access.Apply(req.Table, pred, identity.Role, identity.Email)

	limit := req.Limit
	if limit <= 0 || limit > maxRecordRows {
		limit = maxRecordRows
	}

	rows, err := s.store.Select(ctx, req.Table, req.Fields, pred, req.OrderBy, limit)
	if err != nil {
		log.Printf("assistant: record query on %s failed: %v", req.Table, err)
		return nil, storage.ErrQueryFailed
	}
	if req.Table == access.TableIdentity {
		for _, row := range rows {
			delete(row, "password_hash")
		}
	}
	return rows, nil
}

// ProjectContext loads one project the caller is allowed to see. A missing or
// invisible project returns nil without error so the turn can continue
// without project grounding.
func (s *Service) ProjectContext(ctx context.Context, identity models.UserIdentity, projectID string) (*models.ProjectContext, error) {
	if projectID == "" {
		return nil, nil
	}
	pred := access.Apply(access.TableProjects, query.Eq("id", projectID), identity.Role, identity.Email)

	rows, err := s.store.Select(ctx, access.TableProjects,
		[]string{"id", "project_name", "tech_stack", "leader_of_project", "assigned_to_emails"},
		pred, "", 1)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	project := &models.ProjectContext{
		ID:          asString(row["id"]),
		Name:        asString(row["project_name"]),
		LeaderEmail: asString(row["leader_of_project"]),
	}
	project.TechStack = decodeStringArray(row["tech_stack"])
	project.AssignedEmails = decodeStringArray(row["assigned_to_emails"])
	return project, nil
}

// decodeStringArray parses a JSON text column holding a string array.
// Anything unparseable reads as empty.
func decodeStringArray(raw any) []string {
	text := asString(raw)
	if text == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil
	}
	return out
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
