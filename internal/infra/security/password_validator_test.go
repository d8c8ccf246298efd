package security

import (
	"errors"
	"testing"
)

func TestDefaultPasswordValidator(t *testing.T) {
	validator := DefaultPasswordValidator()

	if err := validator.Validate("short"); err == nil {
		t.Fatalf("expected short password to be rejected")
	}

	if err := validator.Validate("password"); err == nil {
		t.Fatalf("expected dictionary password to be rejected")
	}

	if err := validator.Validate("tr0ub4dour&Styx!"); err != nil {
		t.Fatalf("expected strong password to pass, got %v", err)
	}
}

func TestRequireDifferentFrom(t *testing.T) {
	rule := RequireDifferentFrom("old-password-9")

	err := rule.Validate("old-password-9")
	if err == nil {
		t.Fatalf("expected identical password to be rejected")
	}

	var violation *PasswordValidationError
	if !errors.As(err, &violation) || violation.Code != "different" {
		t.Fatalf("expected different violation, got %v", err)
	}

	if err := rule.Validate("brand-new-password-3"); err != nil {
		t.Fatalf("expected changed password to pass, got %v", err)
	}
}
