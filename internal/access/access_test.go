package access

import (
	"strings"
	"testing"

	"teamassist/internal/models"
	"teamassist/internal/query"
)

func TestApplyAdminAndHRUnrestricted(t *testing.T) {
	base := query.Eq("status", "active")
	for _, role := range []models.Role{models.RoleAdmin, models.RoleHR} {
		for _, table := range []string{TableProjects, TableIdentity} {
			got := Apply(table, base, role, "boss@example.com")
			if got.SQL() != base.SQL() {
				t.Fatalf("%s on %s: expected passthrough, got %q", role, table, got.SQL())
			}
		}
		if got := Apply(TableProjects, query.Predicate{}, role, "boss@example.com"); !got.IsZero() {
			t.Fatalf("%s: expected unrestricted zero predicate, got %q", role, got.SQL())
		}
	}
}

func TestApplyManager(t *testing.T) {
	base := query.Eq("status", "active")

	if got := Apply(TableProjects, base, models.RoleManager, "lead@example.com"); got.SQL() != base.SQL() {
		t.Fatalf("manager projects: expected passthrough, got %q", got.SQL())
	}

	got := Apply(TableIdentity, base, models.RoleManager, "lead@example.com")
	if !strings.Contains(got.SQL(), "email = ?") {
		t.Fatalf("manager identity: expected self-row clause, got %q", got.SQL())
	}
	args := got.Args()
	if args[len(args)-1] != "lead@example.com" {
		t.Fatalf("manager identity: email arg missing, got %v", args)
	}
}

func TestApplyEmployeeAndProjectManager(t *testing.T) {
	for _, role := range []models.Role{models.RoleEmployee, models.RoleProjectManager} {
		got := Apply(TableProjects, query.Predicate{}, role, "dev@example.com")
		if !strings.Contains(got.SQL(), "assigned_to_emails LIKE ?") {
			t.Fatalf("%s projects: expected assignment clause, got %q", role, got.SQL())
		}
		if got.Args()[0] != `%"dev@example.com"%` {
			t.Fatalf("%s projects: membership pattern wrong, got %v", role, got.Args())
		}

		got = Apply(TableIdentity, query.Predicate{}, role, "dev@example.com")
		if got.SQL() != "email = ?" {
			t.Fatalf("%s identity: expected self-row only, got %q", role, got.SQL())
		}
	}
}

func TestApplyNeverWidens(t *testing.T) {
	// Restrictions are conjoined, so the caller's own filter always survives.
	base := query.Eq("status", "active")
	got := Apply(TableProjects, base, models.RoleEmployee, "dev@example.com")
	if !strings.Contains(got.SQL(), "status = ?") {
		t.Fatalf("base filter dropped: %q", got.SQL())
	}
	if !strings.Contains(got.SQL(), " AND ") {
		t.Fatalf("expected conjunction, got %q", got.SQL())
	}
}

func TestApplyUnknownTablePassthrough(t *testing.T) {
	base := query.Eq("category", "pii_risk")
	got := Apply("risk_logs", base, models.RoleEmployee, "dev@example.com")
	if got.SQL() != base.SQL() {
		t.Fatalf("unknown table should pass through, got %q", got.SQL())
	}
	if Restricted("risk_logs") {
		t.Fatalf("risk_logs should not be policy-restricted")
	}
	if !Restricted(TableProjects) || !Restricted(TableIdentity) {
		t.Fatalf("policy tables must report restricted")
	}
}
