// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package security

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/northbound/cil/internal/apperror"
)

// forbiddenKeywords indicate a mutating statement; their presence anywhere
// in the query is a hard reject regardless of SELECT framing.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE",
	"REPLACE", "MERGE", "UPSERT", "GRANT", "REVOKE", "EXEC", "EXECUTE",
	"CALL", "SET", "LOCK", "UNLOCK",
}

var injectionPatterns = compileAll([]string{
	`(?i);\s*(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER)`,
	`(?m)--.*$`,
	`(?s)/\*.*?\*/`,
	`(?i)UNION\s+ALL\s+SELECT`,
	`(?i)INTO\s+OUTFILE`,
	`(?i)INTO\s+DUMPFILE`,
	`(?i)LOAD_FILE`,
})

// ValidateSQL enforces the analytics dispatch's read-only contract: the
// statement must be a single SELECT, free of forbidden keywords and
// injection patterns. Returns the normalized (trailing-semicolon-stripped)
// SQL on success.
func ValidateSQL(sql string) (string, error) {
	if strings.TrimSpace(sql) == "" {
		return "", apperror.Validation("security.ValidateSQL", fmt.Errorf("empty SQL query"))
	}

	normalized := strings.Join(strings.Fields(sql), " ")

	if !strings.HasPrefix(strings.ToUpper(normalized), "SELECT") {
		return "", apperror.Validation("security.ValidateSQL", fmt.Errorf("query must start with SELECT: %s", truncate(normalized, 50)))
	}

	upper := strings.ToUpper(normalized)
	for _, keyword := range forbiddenKeywords {
		if wholeWordMatch(upper, keyword) {
			return "", apperror.Validation("security.ValidateSQL", fmt.Errorf("forbidden keyword detected: %s", keyword))
		}
	}

	for _, p := range injectionPatterns {
		if p.MatchString(normalized) {
			return "", apperror.Validation("security.ValidateSQL", fmt.Errorf("potential SQL injection pattern detected"))
		}
	}

	if strings.Contains(normalized, ";") {
		parts := nonEmptyParts(strings.Split(normalized, ";"))
		if len(parts) > 1 {
			return "", apperror.Validation("security.ValidateSQL", fmt.Errorf("multiple SQL statements not allowed"))
		}
	}

	return strings.TrimSuffix(normalized, ";"), nil
}

var clauseOrder = []string{"GROUP BY", "ORDER BY", "LIMIT", "HAVING"}

// EnforceTenantFilter validates sql and guarantees a tenant_id predicate
// is present, injecting one into the WHERE clause (or synthesizing a
// WHERE clause before GROUP BY/ORDER BY/LIMIT/HAVING, or at the end) when
// the caller omitted it. This is the mandatory isolation backstop for
// ANALYTICS_DB dispatch (§4.5, P1).
func EnforceTenantFilter(sql string, tenantID int64) (string, error) {
	sanitized, err := ValidateSQL(sql)
	if err != nil {
		return "", err
	}

	tenantPattern := regexp.MustCompile(fmt.Sprintf(`(?i)\btenant_id\s*=\s*%d\b`, tenantID))
	if tenantPattern.MatchString(sanitized) {
		return sanitized, nil
	}

	upper := strings.ToUpper(sanitized)
	if idx := strings.Index(upper, "WHERE"); idx != -1 {
		before := sanitized[:idx+5]
		after := sanitized[idx+5:]
		return fmt.Sprintf("%s tenant_id = %d AND%s", before, tenantID, after), nil
	}

	insertBefore := -1
	for _, clause := range clauseOrder {
		if idx := strings.Index(upper, clause); idx != -1 {
			if insertBefore == -1 || idx < insertBefore {
				insertBefore = idx
			}
		}
	}

	if insertBefore != -1 {
		before := strings.TrimRight(sanitized[:insertBefore], " ")
		after := sanitized[insertBefore:]
		return fmt.Sprintf("%s WHERE tenant_id = %d %s", before, tenantID, after), nil
	}

	return fmt.Sprintf("%s WHERE tenant_id = %d", sanitized, tenantID), nil
}

func wholeWordMatch(haystack, word string) bool {
	pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return pattern.MatchString(haystack)
}

func nonEmptyParts(parts []string) []string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
