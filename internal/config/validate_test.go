package config

import (
	"strings"
	"testing"
)

func TestValidateRejectsControlCharsInUserID(t *testing.T) {
	cfg := Default()
	cfg.UserID = "alice\nbob"
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("user id with newline should fail validation")
	}
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "user_id") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected user_id validation error")
	}
}

func TestValidateRejectsBadAddresses(t *testing.T) {
	cfg := Default()
	cfg.ServerAddr = "no-port-here"
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Fatal("server_addr without port should fail validation")
	}
}

func TestValidateClampsPollInterval(t *testing.T) {
	cfg := Default()
	cfg.PollIntervalMs = 1
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("clamps should not be fatal, got %v", errs)
	}
	if cfg.PollIntervalMs != 100 {
		t.Fatalf("PollIntervalMs = %d, want clamped 100", cfg.PollIntervalMs)
	}

	cfg.PollIntervalMs = 120000
	cfg.Validate()
	if cfg.PollIntervalMs != 60000 {
		t.Fatalf("PollIntervalMs = %d, want clamped 60000", cfg.PollIntervalMs)
	}
}

func TestValidateClampsNegativeTolerance(t *testing.T) {
	cfg := Default()
	cfg.SyncTolerance = -3
	cfg.Validate()
	if cfg.SyncTolerance != 0 {
		t.Fatalf("SyncTolerance = %d, want clamped 0", cfg.SyncTolerance)
	}
}

func TestDefaultsPassValidation(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config should validate cleanly, got %v", errs)
	}
}
