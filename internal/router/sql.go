// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/northbound/cil/internal/apperror"
	"github.com/northbound/cil/internal/llm"
	"github.com/northbound/cil/internal/security"
)

// schemaPreamble is the fixed schema description handed to the LLM for
// natural-language-to-SQL translation (§4.5.3's ANALYTICS_DB dispatch).
// Only the columns a read-only analytics query could legitimately need are
// exposed; the model writes a :tenant_id placeholder, generateSQL replaces
// it with the caller's tenant id, and the SQL guard then injects a
// tenant_id predicate if the statement still has none.
const schemaPreamble = `You translate a natural-language question into a single read-only SQLite SELECT statement.

Schema:
  messages(id, tenant_id, channel_id, author_id, content, authored_at, reply_to_id,
           attachment_count, embed_count, mention_count, from_bot, deleted)
  channels(id, tenant_id, name, indexed)
  members(id, tenant_id, username, display_name)

Rules:
- Output exactly one SELECT statement, nothing else (no markdown fences, no commentary).
- Always filter deleted = 0 on messages unless the question explicitly asks about deletions.
- Use tenant_id = :tenant_id as a placeholder predicate; it will be rewritten with the real id.
- Prefer JOIN over members for names, GROUP BY for aggregates, ORDER BY ... DESC LIMIT N for rankings.`

// generateSQL asks the LLM for a candidate SELECT, then substitutes the
// tenant_id placeholder before the statement ever reaches the SQL guard.
func generateSQL(ctx context.Context, client llm.Client, tenantID int64, question string) (string, error) {
	if client == nil {
		return "", apperror.Upstream("router.generateSQL", fmt.Errorf("no LLM configured for analytics dispatch"))
	}
	out, _, err := client.Generate(ctx, schemaPreamble, question)
	if err != nil {
		return "", apperror.Upstream("router.generateSQL", err)
	}
	candidate := strings.TrimSpace(stripFences(out))
	candidate = strings.ReplaceAll(candidate, ":tenant_id", fmt.Sprintf("%d", tenantID))
	return candidate, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// formatQueryResult renders guard-validated query results per §4.5.3:
// a lone scalar renders as a label/value line, tabular results as an
// enumerated list capped at 10 rows.
func formatQueryResult(cols []string, rows [][]any) string {
	if len(rows) == 0 {
		return "No matching data found."
	}
	if len(rows) == 1 && len(cols) == 1 {
		return fmt.Sprintf("**%s**: %v", cols[0], rows[0][0])
	}

	var b strings.Builder
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		parts := make([]string, len(cols))
		for j, c := range cols {
			parts[j] = fmt.Sprintf("%s: %v", c, rows[i][j])
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(parts, ", "))
	}
	if len(rows) > 10 {
		fmt.Fprintf(&b, "... and %d more rows\n", len(rows)-10)
	}
	return strings.TrimSpace(b.String())
}

// runAnalyticsQuery generates, guards, executes and formats a single
// natural-language analytics question, used by the ANALYTICS_DB dispatch.
func runAnalyticsQuery(ctx context.Context, client llm.Client, execer interface {
	ExecReadOnlyQuery(ctx context.Context, query string) ([]string, [][]any, error)
}, tenantID int64, question string) (string, string, error) {
	candidate, err := generateSQL(ctx, client, tenantID, question)
	if err != nil {
		return "", "", err
	}

	guarded, err := security.EnforceTenantFilter(candidate, tenantID)
	if err != nil {
		return "", "", apperror.Security("router.runAnalyticsQuery", err)
	}

	cols, rows, err := execer.ExecReadOnlyQuery(ctx, guarded)
	if err != nil {
		return guarded, "", err
	}
	return guarded, formatQueryResult(cols, rows), nil
}
