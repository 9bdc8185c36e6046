// Package risk classifies the behavioral risk of an inbound message from its
// raw text plus session, role, and project context. Classification is pure
// and table-driven; every evaluation is mirrored into an append-only audit
// log by a best-effort sink.
package risk

import "regexp"

// patternGroup is one named cluster of matchers inside a category. The group
// name becomes the matched-pattern label on decisions and audit rows.
type patternGroup struct {
	name     string
	patterns []*regexp.Regexp
}

func group(name string, exprs ...string) patternGroup {
	g := patternGroup{name: name}
	for _, expr := range exprs {
		g.patterns = append(g.patterns, regexp.MustCompile(`(?i)`+expr))
	}
	return g
}

func (g patternGroup) match(text string) bool {
	for _, p := range g.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Category tables, evaluated strictly in priority order. The order is a total
// order on categories: one utterance can textually match several tables
// ("delete all admin passwords" is both destructive and PII), and the
// higher-priority category must win.

var destructivePatterns = []patternGroup{
	group("delete_all",
		`\bdelete\s+(all|everything|entire)`,
		`\bremove\s+(all|everything|entire)`,
		`\bclear\s+(all|everything|entire)`,
		`\bwipe\s+(all|everything|entire)`,
		`\berase\s+(all|everything)`,
	),
	group("drop_database",
		`\bdrop\s+(table|database|schema)`,
		`\btruncate\s+table`,
		`\bdelete\s+from\s+\w+`,
	),
	group("permanent_deletion",
		`\bpermanently\s+delete`,
		`\bdelete\s+permanently`,
		`\birreversible`,
		`\bno\s+backup`,
	),
	group("bulk_destruction",
		`\bdelete\s+\d+\s+(projects|users|records)`,
		`\bremove\s+\d+\s+(projects|users|records)`,
		`\bbulk\s+delete`,
		`\bmass\s+delete`,
	),
}

var privilegeEscalationPatterns = []patternGroup{
	group("role_change",
		`\bgive\s+me\s+(admin|hr|manager)\s+(access|role|permission)`,
		`\bchange\s+my\s+role\s+to\s+(admin|hr|manager)`,
		`\bmake\s+me\s+(an?\s+)?(admin|hr|manager)`,
		`\bpromote\s+me\s+to\s+(admin|hr|manager)`,
		`\belevate\s+(my\s+)?(privilege|permission|access)`,
	),
	group("bypass_rbac",
		`\bbypass\s+(role|permission|access\s+control|rbac)`,
		`\bignore\s+(role|permission|access\s+control)`,
		`\boverride\s+(role|permission|access\s+control)`,
		`\bcircumvent\s+(security|access\s+control)`,
	),
	group("unauthorized_access",
		`\baccess\s+(other\s+)?(user|employee|admin).*?(data|project|file)`,
		`\bview\s+all\s+(user|employee)\s+(salaries|data|information)`,
		`\bshow\s+all\s+(passwords|credentials|secrets)`,
		`\blist\s+all\s+(user|admin)\s+(passwords|credentials)`,
	),
}

var piiPatterns = []patternGroup{
	group("salary_exposure",
		`\bsalary\s+of\s+\w+`,
		`\bhow\s+much\s+does\s+\w+\s+earn`,
		`\bpay\s+scale`,
		`\bcompensation\s+details`,
		`\ball\s+(employee\s+)?salaries`,
	),
	group("personal_info_request",
		`\bphone\s+number\s+of`,
		`\bemail\s+(address\s+)?of\s+\w+`,
		`\baddress\s+of\s+\w+`,
		`\bpersonal\s+(info|information|details)\s+of`,
		`\bcontact\s+(info|information|details)\s+of`,
	),
	group("credential_exposure",
		`\bpassword\s+for`,
		`\bcredentials\s+for`,
		`\bapi\s+key\s+for`,
		`\btoken\s+for`,
		`\baccess\s+key`,
	),
}

var promptInjectionPatterns = []patternGroup{
	group("system_override",
		`\bignore\s+(previous|all|your)\s+(instructions|rules|prompts)`,
		`\bforget\s+(everything|all|previous)`,
		`\bdisregard\s+(your|all|previous)`,
		`\boverride\s+(system|your)\s+(prompt|instructions)`,
	),
	group("role_manipulation",
		`\byou\s+are\s+now\s+(a\s+)?\w+`,
		`\bact\s+as\s+(a\s+)?\w+`,
		`\bpretend\s+to\s+be`,
		`\bfrom\s+now\s+on,?\s+you`,
	),
	group("secret_extraction",
		`\bshow\s+(me\s+)?(your\s+)?(system\s+)?prompt`,
		`\breveal\s+(your\s+)?(system\s+)?prompt`,
		`\bwhat\s+(are\s+)?your\s+instructions`,
		`\bshow\s+(me\s+)?your\s+(internal\s+)?rules`,
	),
}

// technologyKeyword maps a technology family to the phrases that name it in
// free text. Mismatch detection compares these against the project's declared
// stack by case-insensitive substring.
type technologyKeyword struct {
	name     string
	keywords []string
}

var technologyKeywords = []technologyKeyword{
	{"java", []string{"java", "spring boot", "spring", "maven", "gradle", "jvm"}},
	{"dotnet", []string{".net", "c#", "csharp", "asp.net", "blazor"}},
	{"php", []string{"php", "laravel", "symfony", "wordpress"}},
	{"ruby", []string{"ruby", "rails", "ruby on rails"}},
	{"go", []string{"golang", "go lang", "go "}},
	{"rust", []string{"rust", "cargo"}},
	{"swift", []string{"swift", "swiftui"}},
	{"kotlin", []string{"kotlin", "android kotlin"}},
	{"scala", []string{"scala", "akka"}},
}

func matchGroups(groups []patternGroup, text string) (string, bool) {
	for _, g := range groups {
		if g.match(text) {
			return g.name, true
		}
	}
	return "", false
}
