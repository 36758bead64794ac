package main

import (
	"testing"

	"kasirinaja/fulfillment/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "739154"})
	if err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	cases := []struct {
		pin  string
		weak bool
	}{
		{"123456", true},
		{"777777", true},
		{"987654", true},
		{"345678", true},
		{"739154", false},
		{"402918", false},
	}
	for _, tc := range cases {
		err := validatePINStrength(tc.pin)
		if tc.weak && err == nil {
			t.Fatalf("expected %s to be rejected", tc.pin)
		}
		if !tc.weak && err != nil {
			t.Fatalf("expected %s to pass, got %v", tc.pin, err)
		}
	}
}
