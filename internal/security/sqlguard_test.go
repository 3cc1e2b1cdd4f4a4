// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package security

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateSQL_AllowsSelect(t *testing.T) {
	out, err := ValidateSQL("SELECT count(*) FROM messages WHERE channel_id = 1")
	if err != nil {
		t.Fatalf("expected valid SELECT to pass, got %v", err)
	}
	if out == "" {
		t.Error("expected sanitized SQL")
	}
}

func TestValidateSQL_RejectsNonSelect(t *testing.T) {
	if _, err := ValidateSQL("DELETE FROM messages"); err == nil {
		t.Error("expected non-SELECT to be rejected")
	}
}

func TestValidateSQL_RejectsForbiddenKeyword(t *testing.T) {
	if _, err := ValidateSQL("SELECT * FROM messages; DROP TABLE messages"); err == nil {
		t.Error("expected embedded DROP to be rejected")
	}
}

func TestValidateSQL_RejectsMultipleStatements(t *testing.T) {
	if _, err := ValidateSQL("SELECT 1; SELECT 2"); err == nil {
		t.Error("expected multiple statements to be rejected")
	}
}

func TestValidateSQL_AllowsTrailingSemicolon(t *testing.T) {
	out, err := ValidateSQL("SELECT 1;")
	if err != nil {
		t.Fatalf("expected trailing semicolon to be tolerated, got %v", err)
	}
	if out != "SELECT 1" {
		t.Errorf("expected trailing semicolon stripped, got %q", out)
	}
}

func TestValidateSQL_RejectsUnionInjection(t *testing.T) {
	if _, err := ValidateSQL("SELECT id FROM messages UNION ALL SELECT password FROM users"); err == nil {
		t.Error("expected union injection to be rejected")
	}
}

func TestEnforceTenantFilter_InjectsIntoExistingWhere(t *testing.T) {
	out, err := EnforceTenantFilter("SELECT * FROM messages WHERE channel_id = 1", 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsTenantFilter(out, 42) {
		t.Errorf("expected tenant_id filter injected, got %q", out)
	}
}

func TestEnforceTenantFilter_AddsWhereBeforeOrderBy(t *testing.T) {
	out, err := EnforceTenantFilter("SELECT * FROM messages ORDER BY authored_at DESC", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsTenantFilter(out, 7) {
		t.Errorf("expected tenant_id filter injected before ORDER BY, got %q", out)
	}
}

func TestEnforceTenantFilter_NoopWhenAlreadyPresent(t *testing.T) {
	sql := "SELECT * FROM messages WHERE tenant_id = 3"
	out, err := EnforceTenantFilter(sql, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != sql {
		t.Errorf("expected no change when filter already present, got %q", out)
	}
}

func containsTenantFilter(sql string, tenantID int64) bool {
	return strings.Contains(sql, fmt.Sprintf("tenant_id = %d", tenantID))
}
